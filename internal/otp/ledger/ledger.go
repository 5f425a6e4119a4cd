// Package ledger issues and verifies one-time passcodes keyed by identity.
package ledger

import (
	"context"
	"crypto/subtle"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
)

// DefaultTTL is how long an issued code stays valid.
const DefaultTTL = 5 * time.Minute

const stripes = 256

// ErrIdentityRequired is returned by Request for an empty identity.
var ErrIdentityRequired = errors.New("ledger: identity is required")

type Config struct {
	Store     Store
	Clock     clock.Clocker
	TTL       time.Duration
	Generator Generator
	// NewID returns challenge IDs; uuid v7 when nil.
	NewID func() string
}

type Ledger struct {
	store  Store
	atomic AtomicVerifier
	clock  clock.Clocker
	ttl    time.Duration
	gen    Generator
	newID  func() string
	locks  [stripes]sync.Mutex
}

func New(cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, errors.New("ledger: store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Generator == nil {
		cfg.Generator = randomGenerator{}
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}

	l := &Ledger{
		store: cfg.Store,
		clock: cfg.Clock,
		ttl:   cfg.TTL,
		gen:   cfg.Generator,
		newID: cfg.NewID,
	}
	if av, ok := cfg.Store.(AtomicVerifier); ok {
		l.atomic = av
	}

	return l, nil
}

// TTL reports the configured code lifetime.
func (l *Ledger) TTL() time.Duration { return l.ttl }

// Request issues a fresh challenge for identity, replacing any previous one.
func (l *Ledger) Request(ctx context.Context, identity string) (entity.Challenge, error) {
	if identity == "" {
		return entity.Challenge{}, ErrIdentityRequired
	}

	code, err := l.gen.Generate()
	if err != nil {
		return entity.Challenge{}, err
	}

	mu := l.lock(identity)
	mu.Lock()
	defer mu.Unlock()

	now := l.clock.Now()
	c := entity.Challenge{
		ID:        l.newID(),
		Identity:  identity,
		Code:      code,
		Channel:   entity.ChannelOf(identity),
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	}

	if err := l.observe("save", func() error { return l.store.Save(ctx, c) }); err != nil {
		return entity.Challenge{}, err
	}

	challengesIssued.Inc()

	return c, nil
}

// Verify checks code against the challenge held for identity. A missing
// challenge leaves state untouched, an expired or matched challenge is
// consumed and a mismatch keeps the challenge for another attempt.
func (l *Ledger) Verify(ctx context.Context, identity, code string) (entity.Outcome, error) {
	res, err := l.Check(ctx, identity, code)
	return res.Outcome, err
}

// Check is Verify that also reports which challenge decided the outcome.
func (l *Ledger) Check(ctx context.Context, identity, code string) (Result, error) {
	if identity == "" {
		verifyOutcomes.WithLabelValues(entity.OutcomeNoChallenge.String()).Inc()
		return Result{Outcome: entity.OutcomeNoChallenge}, nil
	}

	code = NormalizeCode(code)

	mu := l.lock(identity)
	mu.Lock()
	defer mu.Unlock()

	var (
		res Result
		err error
	)
	if l.atomic != nil {
		err = l.observe("verify", func() (err error) {
			res, err = l.atomic.Verify(ctx, identity, code, l.clock.Now())
			return err
		})
	} else {
		res, err = l.verify(ctx, identity, code)
	}
	if err != nil {
		return Result{Outcome: entity.OutcomeNoChallenge}, err
	}

	verifyOutcomes.WithLabelValues(res.Outcome.String()).Inc()

	return res, nil
}

func (l *Ledger) verify(ctx context.Context, identity, code string) (Result, error) {
	var c entity.Challenge
	err := l.observe("find", func() (err error) {
		c, err = l.store.Find(ctx, identity)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return Result{Outcome: entity.OutcomeNoChallenge}, nil
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{Outcome: Decide(c, code, l.clock.Now()), ChallengeID: c.ID}
	if res.Outcome == entity.OutcomeMismatch {
		return res, nil
	}

	if err := l.observe("delete", func() error { return l.store.Delete(ctx, identity, c.ID) }); err != nil {
		return Result{}, err
	}

	return res, nil
}

// Decide compares a normalized code with c at now. Expiry wins over a
// matching code. Stores implementing AtomicVerifier in Go use it too.
func Decide(c entity.Challenge, code string, now time.Time) entity.Outcome {
	switch {
	case c.Expired(now):
		return entity.OutcomeExpired
	case code != "" && subtle.ConstantTimeCompare([]byte(code), []byte(c.Code)) == 1:
		return entity.OutcomeVerified
	default:
		return entity.OutcomeMismatch
	}
}

// Revoke removes c if it is still the current challenge for its identity.
func (l *Ledger) Revoke(ctx context.Context, c entity.Challenge) error {
	if c.Identity == "" {
		return nil
	}

	mu := l.lock(c.Identity)
	mu.Lock()
	defer mu.Unlock()

	return l.observe("delete", func() error { return l.store.Delete(ctx, c.Identity, c.ID) })
}

func (l *Ledger) lock(identity string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))

	return &l.locks[h.Sum32()%stripes]
}

func (l *Ledger) observe(op string, f func() error) error {
	start := time.Now()
	err := f()
	storeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	return err
}
