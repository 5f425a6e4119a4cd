package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/ledger"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

// Returns {outcome, id}; outcome 0 no challenge, 1 expired, 2 mismatch, 3 verified.
var verifyScript = redis.NewScript(`
local h = redis.call('HMGET', KEYS[1], 'code', 'expires_at', 'id')
if not h[1] then
	return {0, ''}
end
if tonumber(ARGV[2]) > tonumber(h[2]) then
	redis.call('DEL', KEYS[1])
	return {1, h[3]}
end
if ARGV[1] ~= '' and ARGV[1] == h[1] then
	redis.call('DEL', KEYS[1])
	return {3, h[3]}
end
return {2, h[3]}
`)

var deleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Redis stores one hash per identity and verifies with a Lua script, so
// any number of replicas can share it.
type Redis struct {
	client redis.UniversalClient
	prefix string
	grace  time.Duration
	tr     tracer
}

func NewRedis(client redis.UniversalClient, grace time.Duration, ins instrument.Instrumentation) *Redis {
	if grace <= 0 {
		grace = ledger.DefaultRetentionGrace
	}

	return &Redis{
		client: client,
		prefix: "otp:challenge:",
		grace:  grace,
		tr:     tracer{ins: ins, name: "otp.outbound.store.redis"},
	}
}

func (s *Redis) key(identity string) string {
	return s.prefix + identity
}

func (s *Redis) Save(ctx context.Context, c entity.Challenge) (err error) {
	ctx, span := s.tr.start(ctx, "Save")
	defer func() { s.tr.end(span, err) }()

	r := toRecord(c)
	key := s.key(c.Identity)

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"id", r.ID,
			"identity", r.Identity,
			"code", r.Code,
			"channel", r.Channel,
			"created_at", r.CreatedAt,
			"expires_at", r.ExpiresAt,
		)
		p.PExpireAt(ctx, key, c.ExpiresAt.Add(s.grace))
		return nil
	})

	return err
}

func (s *Redis) Find(ctx context.Context, identity string) (_ entity.Challenge, err error) {
	ctx, span := s.tr.start(ctx, "Find")
	defer func() { s.tr.end(span, err) }()

	h, err := s.client.HGetAll(ctx, s.key(identity)).Result()
	if err != nil {
		return entity.Challenge{}, err
	}
	if len(h) == 0 || h["id"] == "" {
		return entity.Challenge{}, ledger.ErrNotFound
	}

	createdAt, err := strconv.ParseInt(h["created_at"], 10, 64)
	if err != nil {
		return entity.Challenge{}, err
	}
	expiresAt, err := strconv.ParseInt(h["expires_at"], 10, 64)
	if err != nil {
		return entity.Challenge{}, err
	}

	return record{
		ID:        h["id"],
		Identity:  h["identity"],
		Code:      h["code"],
		Channel:   h["channel"],
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}.challenge(), nil
}

func (s *Redis) Delete(ctx context.Context, identity, id string) (err error) {
	ctx, span := s.tr.start(ctx, "Delete")
	defer func() { s.tr.end(span, err) }()

	err = deleteScript.Run(ctx, s.client, []string{s.key(identity)}, id).Err()
	if errors.Is(err, redis.Nil) {
		err = nil
	}

	return err
}

func (s *Redis) Verify(ctx context.Context, identity, code string, now time.Time) (_ ledger.Result, err error) {
	ctx, span := s.tr.start(ctx, "Verify")
	defer func() { s.tr.end(span, err) }()

	out, err := verifyScript.Run(ctx, s.client, []string{s.key(identity)}, code, now.UnixMilli()).Slice()
	if err != nil {
		return ledger.Result{}, err
	}
	if len(out) != 2 {
		return ledger.Result{}, fmt.Errorf("store: unexpected verify reply %v", out)
	}

	n, _ := out[0].(int64)
	id, _ := out[1].(string)

	switch n {
	case 1:
		return ledger.Result{Outcome: entity.OutcomeExpired, ChallengeID: id}, nil
	case 2:
		return ledger.Result{Outcome: entity.OutcomeMismatch, ChallengeID: id}, nil
	case 3:
		return ledger.Result{Outcome: entity.OutcomeVerified, ChallengeID: id}, nil
	default:
		return ledger.Result{Outcome: entity.OutcomeNoChallenge}, nil
	}
}
