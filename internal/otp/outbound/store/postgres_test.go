package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store/storetest"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

func newPostgres(t *testing.T, clk clock.Clocker, grace time.Duration) *Postgres {
	t.Helper()

	if os.Getenv("DONT_USE_NETWORK") != "" {
		t.Skip("test requires network egress")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctr, err := tcpostgres.Run(t.Context(), "postgres:16-alpine",
		tcpostgres.WithDatabase("otpgate"),
		tcpostgres.WithUsername("otpgate"),
		tcpostgres.WithPassword("otpgate"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatal(err)
	}

	dsn, err := ctr.ConnectionString(t.Context(), "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	if err := Migrate(dsn); err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(t.Context(), dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	return NewPostgres(pool, clk, grace, instrument.NewNoop())
}

func TestPostgres(t *testing.T) {
	storetest.Common(t, newPostgres(t, clock.New(), time.Hour))
}

func TestPostgresPurge(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	clk := clock.NewFixed(now)
	s := newPostgres(t, clk, time.Minute)
	ctx := context.Background()

	c := entity.Challenge{ID: "1", Identity: "a@b.co", Code: "123456", Channel: entity.ChannelEmail, CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute)}
	if err := s.Save(ctx, c); err != nil {
		t.Fatal(err)
	}

	if n, err := s.purge(ctx); err != nil || n != 0 {
		t.Fatalf("purge() = %d, %v; want 0", n, err)
	}

	clk.Advance(7 * time.Minute)
	if n, err := s.purge(ctx); err != nil || n != 1 {
		t.Fatalf("purge() = %d, %v; want 1", n, err)
	}
}
