package store

import (
	"context"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store/storetest"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
)

func TestMemory(t *testing.T) {
	storetest.Common(t, NewMemory(clock.New(), time.Hour))
}

func TestMemorySweep(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(start)
	m := NewMemory(clk, time.Minute)

	_ = m.Save(context.Background(), entity.Challenge{ID: "1", Identity: "a@b.co", ExpiresAt: start.Add(5 * time.Minute)})
	_ = m.Save(context.Background(), entity.Challenge{ID: "2", Identity: "c@d.co", ExpiresAt: start.Add(time.Hour)})

	clk.Advance(5 * time.Minute)
	if n := m.sweep(); n != 0 {
		t.Fatalf("sweep() within grace removed %d", n)
	}

	// expired but still retained
	if _, err := m.Find(context.Background(), "a@b.co"); err != nil {
		t.Fatalf("Find() inside grace = %v", err)
	}

	clk.Advance(2 * time.Minute)
	if n := m.sweep(); n != 1 {
		t.Fatalf("sweep() = %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestMemoryRunStops(t *testing.T) {
	m := NewMemory(clock.New(), 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestParseDriver(t *testing.T) {
	for in, want := range map[string]string{"": DriverMemory, " Redis ": DriverRedis, "bbolt": DriverBbolt, "postgres": DriverPostgres} {
		got, err := ParseDriver(in)
		if err != nil || got != want {
			t.Errorf("ParseDriver(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDriver("mongo"); err == nil {
		t.Error("ParseDriver(mongo) err = nil")
	}
}
