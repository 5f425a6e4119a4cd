package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

type IntrospectTokenInput struct {
	Token string
}

// IntrospectTokenOutput describes a verification token. Only Active is set
// when the token is expired, tampered with or signed by someone else.
type IntrospectTokenOutput struct {
	Active      bool
	Identity    string
	Channel     string
	ChallengeID string
	ExpiresAt   time.Time
}

func (s *Usecase) IntrospectToken(ctx context.Context, in IntrospectTokenInput) (*IntrospectTokenOutput, error) {
	ctx, span := s.startSpan(ctx, "IntrospectToken")
	defer span.End()

	if s.jwt == nil || !s.cfg.GetBool("otp.token.enabled") {
		return nil, goerror.NewBusiness("Verification tokens are disabled", goerror.CodeNotFound)
	}

	in.Token = strings.TrimSpace(in.Token)
	if in.Token == "" {
		return nil, goerror.NewInvalidInput(nil, "token", "token is required")
	}

	claims, err := s.jwt.Verify(in.Token)
	if err != nil {
		slog.InfoContext(ctx, "verification token rejected", "error", err)
		return &IntrospectTokenOutput{}, nil
	}

	out := &IntrospectTokenOutput{
		Active:      true,
		Identity:    claims.Subject,
		Channel:     claims.Channel,
		ChallengeID: claims.ChallengeID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}

	return out, nil
}
