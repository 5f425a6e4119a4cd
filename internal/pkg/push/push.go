// Package push dispatches device notifications through Firebase Cloud
// Messaging (HTTP v1 API).
package push

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/apiclient"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ScopeMessaging is the OAuth scope required by the FCM send endpoint.
const ScopeMessaging = "https://www.googleapis.com/auth/firebase.messaging"

const defaultEndpoint = "https://fcm.googleapis.com"

var (
	// ErrProjectIDRequired is returned when no project can be resolved.
	ErrProjectIDRequired = errors.New("push: firebase project id is required")
	// ErrCredentialsRequired is returned when the service account is empty.
	ErrCredentialsRequired = errors.New("push: firebase service account is required")
)

// Notification is a single-device push.
type Notification struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Push sends a notification and returns the gateway message name
// (projects/<id>/messages/<n>).
type Push interface {
	Send(ctx context.Context, n Notification) (string, error)
}

// FCMConfig configures the FCM client.
type FCMConfig struct {
	ProjectID string
	// Endpoint overrides https://fcm.googleapis.com.
	Endpoint string
	// Client must already authenticate its requests.
	Client *apiclient.Client
}

// FCM is a Push backed by the FCM HTTP v1 API.
type FCM struct {
	sendURL string
	client  *apiclient.Client
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      fcmAndroid        `json:"android"`
	APNS         fcmAPNS           `json:"apns"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority string `json:"priority"`
}

type fcmAPNS struct {
	Headers map[string]string `json:"headers"`
}

type fcmResponse struct {
	Name string `json:"name"`
}

// NewFCM builds an FCM client around an already authenticated apiclient.
func NewFCM(cfg FCMConfig) (*FCM, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, ErrProjectIDRequired
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	client := cfg.Client
	if client == nil {
		client = apiclient.New(apiclient.Config{})
	}

	return &FCM{
		sendURL: fmt.Sprintf("%s/v1/projects/%s/messages:send", endpoint, url.PathEscape(cfg.ProjectID)),
		client:  client,
	}, nil
}

// NewFCMFromServiceAccount authenticates with a Google service account JSON.
// The project id falls back to the one in the credentials.
func NewFCMFromServiceAccount(ctx context.Context, serviceAccount []byte, cfg FCMConfig) (*FCM, error) {
	if len(serviceAccount) == 0 {
		return nil, ErrCredentialsRequired
	}

	creds, err := google.CredentialsFromJSON(ctx, serviceAccount, ScopeMessaging)
	if err != nil {
		return nil, fmt.Errorf("push: parse service account: %w", err)
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = creds.ProjectID
	}

	base := cfg.Client
	if base == nil {
		base = apiclient.New(apiclient.Config{})
	}
	cfg.Client = base.WithHTTPClient(oauth2.NewClient(ctx, creds.TokenSource))

	return NewFCM(cfg)
}

// Send posts the notification with Android priority high and APNs priority 10.
func (f *FCM) Send(ctx context.Context, n Notification) (string, error) {
	var resp fcmResponse
	err := f.client.PostJSON(ctx, f.sendURL, nil, fcmRequest{Message: fcmMessage{
		Token:        n.Token,
		Notification: fcmNotification{Title: n.Title, Body: n.Body},
		Data:         n.Data,
		Android:      fcmAndroid{Priority: "high"},
		APNS:         fcmAPNS{Headers: map[string]string{"apns-priority": "10"}},
	}}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Name, nil
}
