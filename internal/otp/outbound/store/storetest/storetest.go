// Package storetest holds the behavior every ledger store must share.
package storetest

import (
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/ledger"
)

func challenge(t *testing.T, id, code string) entity.Challenge {
	now := time.Now().Truncate(time.Millisecond)

	return entity.Challenge{
		ID:        id,
		Identity:  t.Name() + "@example.com",
		Code:      code,
		Channel:   entity.ChannelEmail,
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
}

// Common runs the shared store contract against s.
func Common(t *testing.T, s ledger.Store) {
	t.Run("find missing", func(t *testing.T) {
		if _, err := s.Find(t.Context(), t.Name()); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("Find() err = %v, want ErrNotFound", err)
		}
	})

	t.Run("save find delete", func(t *testing.T) {
		c := challenge(t, "c1", "123456")
		if err := s.Save(t.Context(), c); err != nil {
			t.Fatal(err)
		}

		got, err := s.Find(t.Context(), c.Identity)
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != c.ID || got.Code != c.Code || got.Channel != c.Channel {
			t.Fatalf("Find() = %+v, want %+v", got, c)
		}
		if !got.ExpiresAt.Equal(c.ExpiresAt) || !got.CreatedAt.Equal(c.CreatedAt) {
			t.Fatalf("times = %v/%v, want %v/%v", got.CreatedAt, got.ExpiresAt, c.CreatedAt, c.ExpiresAt)
		}

		if err := s.Delete(t.Context(), c.Identity, c.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Find(t.Context(), c.Identity); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("Find() after Delete err = %v", err)
		}
		if err := s.Delete(t.Context(), c.Identity, c.ID); err != nil {
			t.Fatalf("Delete() of missing = %v, want nil", err)
		}
	})

	t.Run("save replaces", func(t *testing.T) {
		old := challenge(t, "old", "111111")
		cur := challenge(t, "new", "222222")
		if err := s.Save(t.Context(), old); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(t.Context(), cur); err != nil {
			t.Fatal(err)
		}

		if err := s.Delete(t.Context(), old.Identity, old.ID); err != nil {
			t.Fatal(err)
		}
		got, err := s.Find(t.Context(), cur.Identity)
		if err != nil {
			t.Fatalf("stale Delete removed the current challenge: %v", err)
		}
		if got.ID != cur.ID || got.Code != cur.Code {
			t.Fatalf("Find() = %+v, want %+v", got, cur)
		}
	})

	av, ok := s.(ledger.AtomicVerifier)
	if !ok {
		return
	}

	t.Run("atomic verify", func(t *testing.T) {
		c := challenge(t, "v1", "654321")
		ctx := t.Context()

		if r, err := av.Verify(ctx, c.Identity, "654321", c.CreatedAt); err != nil || r.Outcome != entity.OutcomeNoChallenge {
			t.Fatalf("Verify(missing) = %+v, %v", r, err)
		}

		if err := s.Save(ctx, c); err != nil {
			t.Fatal(err)
		}
		for _, code := range []string{"000000", ""} {
			if r, err := av.Verify(ctx, c.Identity, code, c.CreatedAt); err != nil || r.Outcome != entity.OutcomeMismatch {
				t.Fatalf("Verify(%q) = %+v, %v; want mismatch", code, r, err)
			}
		}
		r, err := av.Verify(ctx, c.Identity, "654321", c.ExpiresAt)
		if err != nil || r.Outcome != entity.OutcomeVerified || r.ChallengeID != c.ID {
			t.Fatalf("Verify(correct at expiry) = %+v, %v", r, err)
		}
		if r, _ := av.Verify(ctx, c.Identity, "654321", c.ExpiresAt); r.Outcome != entity.OutcomeNoChallenge {
			t.Fatalf("second Verify = %+v, want no challenge", r)
		}
	})

	t.Run("atomic verify expired", func(t *testing.T) {
		c := challenge(t, "v2", "654321")
		ctx := t.Context()
		if err := s.Save(ctx, c); err != nil {
			t.Fatal(err)
		}

		late := c.ExpiresAt.Add(time.Millisecond)
		if r, err := av.Verify(ctx, c.Identity, "654321", late); err != nil || r.Outcome != entity.OutcomeExpired {
			t.Fatalf("Verify(late) = %+v, %v; want expired", r, err)
		}
		if _, err := s.Find(ctx, c.Identity); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("expired challenge retained: %v", err)
		}
	})
}
