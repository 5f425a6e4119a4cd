// Package store holds the ledger backends: memory, redis, bbolt and postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/ledger"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

// Drivers accepted by otp.store.driver.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverBbolt    = "bbolt"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver indicates an unsupported store driver.
var ErrUnknownDriver = errors.New("store: unknown driver")

// ParseDriver normalizes a driver name; empty selects memory.
func ParseDriver(s string) (string, error) {
	switch d := strings.ToLower(strings.TrimSpace(s)); d {
	case "", DriverMemory:
		return DriverMemory, nil
	case DriverRedis, DriverBbolt, DriverPostgres:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownDriver, s)
	}
}

// record is the serialized form used by the key/value backends.
type record struct {
	ID        string `json:"id"`
	Identity  string `json:"identity"`
	Code      string `json:"code"`
	Channel   string `json:"channel"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

func toRecord(c entity.Challenge) record {
	return record{
		ID:        c.ID,
		Identity:  c.Identity,
		Code:      c.Code,
		Channel:   c.Channel.String(),
		CreatedAt: c.CreatedAt.UnixMilli(),
		ExpiresAt: c.ExpiresAt.UnixMilli(),
	}
}

func (r record) challenge() entity.Challenge {
	return entity.Challenge{
		ID:        r.ID,
		Identity:  r.Identity,
		Code:      r.Code,
		Channel:   entity.ChannelFromString(r.Channel),
		CreatedAt: time.UnixMilli(r.CreatedAt),
		ExpiresAt: time.UnixMilli(r.ExpiresAt),
	}
}

func encode(c entity.Challenge) ([]byte, error) {
	return json.Marshal(toRecord(c))
}

func decode(b []byte) (entity.Challenge, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return entity.Challenge{}, err
	}

	return r.challenge(), nil
}

type tracer struct {
	ins  instrument.Instrumentation
	name string
}

func (t tracer) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return t.ins.Tracer(t.name).Start(ctx, op)
}

func (t tracer) end(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
