package inbound

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

type uc interface {
	RequestChallenge(ctx context.Context, in usecase.RequestChallengeInput) error
	VerifyChallenge(ctx context.Context, in usecase.VerifyChallengeInput) (*usecase.VerifyChallengeOutput, error)
	IntrospectToken(ctx context.Context, in usecase.IntrospectTokenInput) (*usecase.IntrospectTokenOutput, error)

	ConsumeChallengeRequested(ctx context.Context, in usecase.ConsumeChallengeRequestedInput) error
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	r.POST("/api/v1/otp/send", end.SendOTP)
	r.POST("/api/v1/otp/verify", end.VerifyOTP)
	r.POST("/api/v1/otp/token/introspect", end.IntrospectToken)

	// legacy paths kept for existing mobile clients
	r.POST("/send-otp", end.SendOTP)
	r.POST("/verify-otp", end.VerifyOTP)
}
