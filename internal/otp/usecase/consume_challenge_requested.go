package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
)

type ConsumeChallengeRequestedInput struct {
	ChallengeID string
	Identity    string
	Channel     string
	Code        string
	ExpiresAt   time.Time
}

// ConsumeChallengeRequested delivers a code queued by the async mode. An
// already expired challenge is dropped; a delivery error is returned so the
// broker can redeliver.
func (s *Usecase) ConsumeChallengeRequested(ctx context.Context, in ConsumeChallengeRequestedInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeChallengeRequested")
	defer span.End()

	ch := entity.Challenge{
		ID:        in.ChallengeID,
		Identity:  in.Identity,
		Code:      in.Code,
		Channel:   entity.ChannelFromString(in.Channel),
		ExpiresAt: in.ExpiresAt,
	}
	if ch.Channel == entity.ChannelUnknown {
		ch.Channel = entity.ChannelOf(ch.Identity)
	}

	if ch.Identity == "" || ch.Code == "" {
		slog.WarnContext(ctx, "dropping malformed otp delivery", "challenge_id", ch.ID)
		return nil
	}

	if ch.Expired(s.clock.Now()) {
		slog.WarnContext(ctx, "dropping expired otp delivery", "challenge_id", ch.ID, "identity", ch.Identity)
		return nil
	}

	if err := s.repoDelivery.Send(ctx, ch); err != nil {
		slog.ErrorContext(ctx, "failed to deliver otp", "challenge_id", ch.ID, "identity", ch.Identity, "error", err)
		return err
	}

	return nil
}
