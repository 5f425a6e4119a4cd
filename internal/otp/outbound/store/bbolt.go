package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/ledger"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
)

var (
	ErrMissingPath = errors.New("bbolt: path is missing")

	keyData   = []byte("data")
	keyExpiry = []byte("expiry")
)

// Bbolt is a single-node persistent store. Every identity gets its own
// bucket holding the encoded challenge under "data" and its retention
// deadline under "expiry", so cleanup only reads the deadline.
//
// It must not be shared between replicas.
type Bbolt struct {
	bdb   *bbolt.DB
	clock clock.Clocker
	grace time.Duration
}

func NewBbolt(path string, clk clock.Clocker, grace time.Duration) (*Bbolt, error) {
	if path == "" {
		return nil, ErrMissingPath
	}
	if grace <= 0 {
		grace = ledger.DefaultRetentionGrace
	}

	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("can't open bbolt database %s: %w", path, err)
	}

	return &Bbolt{bdb: bdb, clock: clk, grace: grace}, nil
}

func (s *Bbolt) Close() error {
	return s.bdb.Close()
}

func (s *Bbolt) Save(_ context.Context, c entity.Challenge) error {
	data, err := encode(c)
	if err != nil {
		return err
	}
	retain := c.ExpiresAt.Add(s.grace).Format(time.RFC3339Nano)

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		key := []byte(c.Identity)
		if tx.Bucket(key) != nil {
			if err := tx.DeleteBucket(key); err != nil {
				return err
			}
		}

		bkt, err := tx.CreateBucket(key)
		if err != nil {
			return fmt.Errorf("create bucket %q: %w", c.Identity, err)
		}
		if err := bkt.Put(keyExpiry, []byte(retain)); err != nil {
			return err
		}

		return bkt.Put(keyData, data)
	})
}

func (s *Bbolt) Find(_ context.Context, identity string) (entity.Challenge, error) {
	var c entity.Challenge

	err := s.bdb.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(identity))
		if bkt == nil {
			return ledger.ErrNotFound
		}

		if s.retired(bkt) {
			return ledger.ErrNotFound
		}

		data := bkt.Get(keyData)
		if data == nil {
			return fmt.Errorf("[unexpected] %w: %q (data is nil)", ledger.ErrNotFound, identity)
		}

		var err error
		c, err = decode(data)
		return err
	})

	return c, err
}

func (s *Bbolt) Delete(_ context.Context, identity, id string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		key := []byte(identity)
		bkt := tx.Bucket(key)
		if bkt == nil {
			return nil
		}

		c, err := decode(bkt.Get(keyData))
		if err != nil || c.ID != id {
			return nil
		}

		return tx.DeleteBucket(key)
	})
}

// Run removes retired buckets every interval until ctx is done.
func (s *Bbolt) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.cleanup(); err != nil {
				slog.ErrorContext(ctx, "failed to clean bbolt store", "error", err)
			}
		}
	}
}

func (s *Bbolt) cleanup() error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		var retired [][]byte
		err := tx.ForEach(func(name []byte, bkt *bbolt.Bucket) error {
			if s.retired(bkt) {
				retired = append(retired, append([]byte(nil), name...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, name := range retired {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *Bbolt) retired(bkt *bbolt.Bucket) bool {
	raw := bkt.Get(keyExpiry)
	if raw == nil {
		return true
	}

	until, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return true
	}

	return s.clock.Now().After(until)
}
