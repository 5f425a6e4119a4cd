package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/ledger"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies the embedded schema to the database at dsn.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

const (
	sqlUpsert = `INSERT INTO otp_challenges (identity, id, code, channel, created_at, expires_at, retain_until)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (identity) DO UPDATE SET
    id = EXCLUDED.id,
    code = EXCLUDED.code,
    channel = EXCLUDED.channel,
    created_at = EXCLUDED.created_at,
    expires_at = EXCLUDED.expires_at,
    retain_until = EXCLUDED.retain_until`

	sqlFind = `SELECT id, identity, code, channel, created_at, expires_at
FROM otp_challenges WHERE identity = $1 AND retain_until >= $2`

	sqlFindForUpdate = sqlFind + ` FOR UPDATE`

	sqlDelete = `DELETE FROM otp_challenges WHERE identity = $1 AND id = $2`

	sqlPurge = `DELETE FROM otp_challenges WHERE retain_until < $1`
)

// Postgres keeps challenges in the otp_challenges table and verifies inside
// a transaction holding the row lock.
type Postgres struct {
	conn  *pgxpool.Pool
	clock clock.Clocker
	grace time.Duration
	tr    tracer
}

func NewPostgres(conn *pgxpool.Pool, clk clock.Clocker, grace time.Duration, ins instrument.Instrumentation) *Postgres {
	if grace <= 0 {
		grace = ledger.DefaultRetentionGrace
	}

	return &Postgres{
		conn:  conn,
		clock: clk,
		grace: grace,
		tr:    tracer{ins: ins, name: "otp.outbound.store.postgres"},
	}
}

func (s *Postgres) mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrNotFound
	}

	return err
}

func (s *Postgres) Save(ctx context.Context, c entity.Challenge) (err error) {
	ctx, span := s.tr.start(ctx, "Save")
	defer func() { s.tr.end(span, err) }()

	_, err = s.conn.Exec(ctx, sqlUpsert,
		c.Identity, c.ID, c.Code, c.Channel.String(),
		c.CreatedAt, c.ExpiresAt, c.ExpiresAt.Add(s.grace),
	)

	return err
}

func (s *Postgres) Find(ctx context.Context, identity string) (_ entity.Challenge, err error) {
	ctx, span := s.tr.start(ctx, "Find")
	defer func() { s.tr.end(span, err) }()

	c, err := scanChallenge(s.conn.QueryRow(ctx, sqlFind, identity, s.clock.Now()))
	if err != nil {
		return entity.Challenge{}, s.mapError(err)
	}

	return c, nil
}

func (s *Postgres) Delete(ctx context.Context, identity, id string) (err error) {
	ctx, span := s.tr.start(ctx, "Delete")
	defer func() { s.tr.end(span, err) }()

	_, err = s.conn.Exec(ctx, sqlDelete, identity, id)
	return err
}

func (s *Postgres) Verify(ctx context.Context, identity, code string, now time.Time) (_ ledger.Result, err error) {
	ctx, span := s.tr.start(ctx, "Verify")
	defer func() { s.tr.end(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ledger.Result{}, err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback", "error", rErr)
		}
	}()

	c, err := scanChallenge(tx.QueryRow(ctx, sqlFindForUpdate, identity, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Result{Outcome: entity.OutcomeNoChallenge}, nil
	}
	if err != nil {
		return ledger.Result{}, err
	}

	res := ledger.Result{Outcome: ledger.Decide(c, code, now), ChallengeID: c.ID}
	if res.Outcome == entity.OutcomeMismatch {
		return res, nil
	}

	if _, err := tx.Exec(ctx, sqlDelete, identity, c.ID); err != nil {
		return ledger.Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.Result{}, err
	}

	return res, nil
}

// Run purges rows past retention every interval until ctx is done.
func (s *Postgres) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := s.purge(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to purge otp challenges", "error", err)
			}
		}
	}
}

func (s *Postgres) purge(ctx context.Context) (int64, error) {
	tag, err := s.conn.Exec(ctx, sqlPurge, s.clock.Now())
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func scanChallenge(row pgx.Row) (entity.Challenge, error) {
	var (
		c       entity.Challenge
		channel string
	)
	if err := row.Scan(&c.ID, &c.Identity, &c.Code, &channel, &c.CreatedAt, &c.ExpiresAt); err != nil {
		return entity.Challenge{}, err
	}
	c.Channel = entity.ChannelFromString(channel)

	return c, nil
}
