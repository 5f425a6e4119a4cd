package inbound

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/samber/lo"

	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
)

type SendOTPRequest struct {
	Identity string `json:"identity"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

func (r SendOTPRequest) identity() string {
	return firstNonBlank(r.Identity, r.Email, r.Phone)
}

type SendOTPResponse struct{}

func (SendOTPResponse) Message() string { return "OTP sent successfully" }

func (SendOTPResponse) Data() any { return nil }

type VerifyOTPRequest struct {
	Identity string `json:"identity"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	OTP      Code   `json:"otp"`
	Code     Code   `json:"code"`
}

func (r VerifyOTPRequest) identity() string {
	return firstNonBlank(r.Identity, r.Email, r.Phone)
}

func (r VerifyOTPRequest) code() string {
	return firstNonBlank(string(r.OTP), string(r.Code))
}

type VerifyOTPResponse struct {
	out usecase.VerifyChallengeOutput
}

func (v VerifyOTPResponse) Success() bool   { return v.out.Outcome.Verified() }
func (v VerifyOTPResponse) Message() string { return v.out.Outcome.Message() }

func (v VerifyOTPResponse) Data() any {
	if v.out.Token == "" {
		return nil
	}

	return map[string]string{"token": v.out.Token}
}

type IntrospectTokenRequest struct {
	Token string `json:"token"`
}

type IntrospectTokenResponse struct {
	Active      bool   `json:"active"`
	Identity    string `json:"identity,omitempty"`
	Channel     string `json:"channel,omitempty"`
	ChallengeID string `json:"challenge_id,omitempty"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
}

// Code accepts a JSON string or number. Any other JSON value decodes to an
// empty code, which never matches.
type Code string

func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)

	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*c = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Code(s)
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*c = Code(n.String())
	default:
		*c = ""
	}

	return nil
}

func firstNonBlank(vals ...string) string {
	v, _ := lo.Find(vals, func(s string) bool { return strings.TrimSpace(s) != "" })
	return v
}
