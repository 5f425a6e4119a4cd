package mail

import (
	"context"
	"errors"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/apiclient"
)

// ErrAPIEndpointRequired is returned when the API endpoint or key is missing.
var ErrAPIEndpointRequired = errors.New("mail: api endpoint and key are required")

// APIConfig configures the transactional email API sender.
type APIConfig struct {
	// Endpoint receives POSTed JSON messages.
	Endpoint string
	APIKey   string
	From     string
	Client   *apiclient.Client
}

// API sends messages through a transactional email HTTP API that accepts
// {from, to, cc, bcc, subject, html, text} with bearer authentication.
type API struct {
	endpoint    string
	apiKey      string
	defaultFrom string
	client      *apiclient.Client
}

type apiPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// NewAPI constructs an API sender.
func NewAPI(cfg APIConfig) (*API, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAPIEndpointRequired
	}

	client := cfg.Client
	if client == nil {
		client = apiclient.New(apiclient.Config{})
	}

	return &API{endpoint: cfg.Endpoint, apiKey: cfg.APIKey, defaultFrom: cfg.From, client: client}, nil
}

// Send posts msg to the API, retrying transient failures.
func (a *API) Send(ctx context.Context, msg Message) error {
	msg, err := normalize(msg, a.defaultFrom)
	if err != nil {
		return err
	}

	return a.client.PostJSON(ctx, a.endpoint, map[string]string{"Authorization": "Bearer " + a.apiKey}, apiPayload{
		From:    msg.From,
		To:      msg.To,
		Cc:      msg.Cc,
		Bcc:     msg.Bcc,
		Subject: msg.Subject,
		HTML:    msg.HTMLBody,
		Text:    msg.TextBody,
	}, nil)
}

// Close implements io.Closer.
func (a *API) Close() error {
	return nil
}
