package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
)

type VerifyChallengeInput struct {
	Identity string
	Code     string
}

type VerifyChallengeOutput struct {
	Outcome entity.Outcome
	// Token is set on a verified outcome when otp.token.enabled is on.
	Token string
}

func (s *Usecase) VerifyChallenge(ctx context.Context, in VerifyChallengeInput) (*VerifyChallengeOutput, error) {
	ctx, span := s.startSpan(ctx, "VerifyChallenge")
	defer span.End()

	in.Identity = normalizeIdentity(in.Identity)

	res, err := s.ledger.Check(ctx, in.Identity, in.Code)
	if err != nil {
		slog.ErrorContext(ctx, "failed to ledger verify challenge", "identity", in.Identity, "error", err)
		return nil, goerror.NewServer(err)
	}

	out := &VerifyChallengeOutput{Outcome: res.Outcome}
	if !res.Outcome.Verified() {
		slog.InfoContext(ctx, "otp verification rejected", "identity", in.Identity, "outcome", res.Outcome.String())
		return out, nil
	}

	if s.jwt != nil && s.cfg.GetBool("otp.token.enabled") {
		token, err := s.jwt.Generate(jwt.Subject{
			Identity:    in.Identity,
			Channel:     entity.ChannelOf(in.Identity).String(),
			ChallengeID: res.ChallengeID,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to generate verification token", "identity", in.Identity, "error", err)
			return nil, goerror.NewServer(err)
		}
		out.Token = token
	}

	if s.repoMessaging != nil && s.cfg.GetBool("otp.events.enabled") {
		if err := s.repoMessaging.PublishChallengeVerified(ctx, ChallengeVerifiedEvent{
			ChallengeID: res.ChallengeID,
			Identity:    in.Identity,
			VerifiedAt:  s.clock.Now(),
		}); err != nil {
			slog.ErrorContext(ctx, "failed to publish otp challenge verified", "identity", in.Identity, "error", err)
		}
	}

	return out, nil
}
