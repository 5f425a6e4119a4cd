// Package sms sends one-time passcodes to phone numbers through an HTTP OTP
// route of an SMS gateway.
package sms

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/shandysiswandi/otpgate/internal/pkg/apiclient"
)

const defaultBaseURL = "https://www.smslocal.com/dev/bulkV2"

var (
	// ErrAPIKeyRequired is returned when the gateway key is not configured.
	ErrAPIKeyRequired = errors.New("sms: API key not configured")
	// ErrInvalidPhone is returned when the number has no digits.
	ErrInvalidPhone = errors.New("sms: invalid phone number")
)

// Sender delivers an OTP to a phone number.
type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// Config configures the gateway client.
type Config struct {
	APIKey  string
	BaseURL string
	// SenderID is the registered sender header, optional.
	SenderID string
	Client   *apiclient.Client
}

// Gateway posts {route:"otp", numbers, variables} to the gateway with the raw
// key in the Authorization header.
type Gateway struct {
	apiKey   string
	baseURL  string
	senderID string
	client   *apiclient.Client
}

type payload struct {
	Route     string `json:"route"`
	Numbers   string `json:"numbers"`
	Variables string `json:"variables"`
	SenderID  string `json:"sender_id,omitempty"`
}

// NewGateway builds a Gateway, defaulting BaseURL.
func NewGateway(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAPIKeyRequired
	}

	g := &Gateway{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, senderID: cfg.SenderID, client: cfg.Client}
	if g.baseURL == "" {
		g.baseURL = defaultBaseURL
	}
	if g.client == nil {
		g.client = apiclient.New(apiclient.Config{})
	}
	return g, nil
}

// SendOTP sends code to phone. The number is reduced to its digits, country
// code included, as the gateway expects.
func (g *Gateway) SendOTP(ctx context.Context, phone, code string) error {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	if digits == "" {
		return ErrInvalidPhone
	}

	return g.client.PostJSON(ctx, g.baseURL, map[string]string{"Authorization": g.apiKey}, payload{
		Route:     "otp",
		Numbers:   digits,
		Variables: code,
		SenderID:  g.senderID,
	}, nil)
}
