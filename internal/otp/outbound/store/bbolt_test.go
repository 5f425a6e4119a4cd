package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/ledger"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store/storetest"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
)

func newBbolt(t *testing.T, clk clock.Clocker, grace time.Duration) *Bbolt {
	t.Helper()

	s, err := NewBbolt(filepath.Join(t.TempDir(), "otp.db"), clk, grace)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestBbolt(t *testing.T) {
	storetest.Common(t, newBbolt(t, clock.New(), time.Hour))
}

func TestBboltMissingPath(t *testing.T) {
	if _, err := NewBbolt("", clock.New(), 0); !errors.Is(err, ErrMissingPath) {
		t.Fatalf("err = %v, want ErrMissingPath", err)
	}
}

func TestBboltCleanup(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(start)
	s := newBbolt(t, clk, time.Minute)
	ctx := context.Background()

	c := entity.Challenge{ID: "1", Identity: "a@b.co", Code: "123456", ExpiresAt: start.Add(5 * time.Minute)}
	if err := s.Save(ctx, c); err != nil {
		t.Fatal(err)
	}

	clk.Advance(7 * time.Minute)
	if err := s.cleanup(); err != nil {
		t.Fatal(err)
	}

	clk.Set(start)
	if _, err := s.Find(ctx, c.Identity); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("Find() after cleanup err = %v", err)
	}
}
