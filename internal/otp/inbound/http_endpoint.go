package inbound

import (
	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

type HTTPEndpoint struct {
	uc uc
}

// SendOTP issues a code and delivers it to the email or phone in the body.
func (h *HTTPEndpoint) SendOTP(r *router.Request) (any, error) {
	var req SendOTPRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	if err := h.uc.RequestChallenge(r.Context(), usecase.RequestChallengeInput{
		Identity: req.identity(),
	}); err != nil {
		return nil, err
	}

	return SendOTPResponse{}, nil
}

// VerifyOTP checks a code. Rejections are answered with 200 and
// success=false; only infrastructure failures produce an error status.
func (h *HTTPEndpoint) VerifyOTP(r *router.Request) (any, error) {
	var req VerifyOTPRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.VerifyChallenge(r.Context(), usecase.VerifyChallengeInput{
		Identity: req.identity(),
		Code:     req.code(),
	})
	if err != nil {
		return nil, err
	}

	return VerifyOTPResponse{out: *resp}, nil
}

// IntrospectToken reports whether a verification token is still valid and
// which identity it vouches for.
func (h *HTTPEndpoint) IntrospectToken(r *router.Request) (any, error) {
	var req IntrospectTokenRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.IntrospectToken(r.Context(), usecase.IntrospectTokenInput{Token: req.Token})
	if err != nil {
		return nil, err
	}

	out := IntrospectTokenResponse{Active: resp.Active}
	if resp.Active {
		out.Identity = resp.Identity
		out.Channel = resp.Channel
		out.ChallengeID = resp.ChallengeID
		out.ExpiresAt = resp.ExpiresAt.Unix()
	}

	return out, nil
}
