package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

type RequestChallengeInput struct {
	Identity string `validate:"required,otpidentity"`
}

func (s *Usecase) RequestChallenge(ctx context.Context, in RequestChallengeInput) error {
	ctx, span := s.startSpan(ctx, "RequestChallenge")
	defer span.End()

	in.Identity = normalizeIdentity(in.Identity)
	if in.Identity == "" {
		return goerror.NewBusiness("Email required", goerror.CodeInvalidFormat)
	}

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	if window := s.cfg.GetSecond("otp.cooldown_seconds"); window > 0 && s.cooldown != nil {
		ok, err := s.cooldown.Acquire(ctx, in.Identity, window)
		if err != nil {
			slog.ErrorContext(ctx, "failed to acquire otp cooldown", "identity", in.Identity, "error", err)
			return goerror.NewServer(err)
		}
		if !ok {
			slog.WarnContext(ctx, "otp requested during cooldown", "identity", in.Identity)
			return goerror.NewBusiness("Too many requests", goerror.CodeTooManyRequest)
		}
	}

	ch, err := s.ledger.Request(ctx, in.Identity)
	if err != nil {
		slog.ErrorContext(ctx, "failed to ledger request challenge", "identity", in.Identity, "error", err)
		s.releaseCooldown(ctx, in.Identity)
		return goerror.NewServer(err, msgFailedSend)
	}

	if err := s.deliver(ctx, ch); err != nil {
		slog.ErrorContext(ctx, "failed to deliver otp", "identity", ch.Identity, "channel", ch.Channel.String(), "error", err)
		s.releaseCooldown(ctx, ch.Identity)

		if s.cfg.GetBool("otp.rollback_on_delivery_failure") {
			if rErr := s.ledger.Revoke(ctx, ch); rErr != nil {
				slog.ErrorContext(ctx, "failed to ledger revoke challenge", "identity", ch.Identity, "error", rErr)
			}
		}

		return goerror.NewServer(err, msgFailedSend)
	}

	slog.InfoContext(ctx, "otp challenge issued", "identity", ch.Identity, "channel", ch.Channel.String(), "challenge_id", ch.ID)

	return nil
}

func (s *Usecase) deliver(ctx context.Context, ch entity.Challenge) error {
	if strings.EqualFold(s.cfg.GetString("otp.delivery.mode"), DeliveryModeAsync) && s.repoMessaging != nil {
		return s.repoMessaging.PublishChallengeRequested(ctx, ChallengeRequestedEvent{
			ChallengeID: ch.ID,
			Identity:    ch.Identity,
			Channel:     ch.Channel.String(),
			Code:        ch.Code,
			ExpiresAt:   ch.ExpiresAt,
		})
	}

	return s.repoDelivery.Send(ctx, ch)
}

func (s *Usecase) releaseCooldown(ctx context.Context, identity string) {
	if s.cooldown == nil || s.cfg.GetSecond("otp.cooldown_seconds") <= 0 {
		return
	}

	if err := s.cooldown.Release(ctx, identity); err != nil {
		slog.WarnContext(ctx, "failed to release otp cooldown", "identity", identity, "error", err)
	}
}
