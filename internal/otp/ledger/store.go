package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
)

// DefaultRetentionGrace keeps a challenge around after it expires so a late
// verify reports Expired instead of NoChallenge.
const DefaultRetentionGrace = 24 * time.Hour

// ErrNotFound is returned by a Store when the identity has no challenge.
var ErrNotFound = errors.New("ledger: challenge not found")

// Store persists at most one challenge per identity.
type Store interface {
	// Save replaces any challenge held for c.Identity.
	Save(ctx context.Context, c entity.Challenge) error
	// Find returns ErrNotFound when nothing is held for identity.
	Find(ctx context.Context, identity string) (entity.Challenge, error)
	// Delete removes the challenge for identity only when its ID is id.
	// Deleting a missing or replaced challenge is not an error.
	Delete(ctx context.Context, identity, id string) error
}

// Result is the outcome of a verification and the challenge it was
// decided against. ChallengeID is empty for NoChallenge.
type Result struct {
	Outcome     entity.Outcome
	ChallengeID string
}

// AtomicVerifier is implemented by stores that can run the whole
// lookup, expiry check, compare and delete sequence on their side.
// code is already normalized; an empty code never matches.
type AtomicVerifier interface {
	Verify(ctx context.Context, identity, code string, now time.Time) (Result, error)
}
