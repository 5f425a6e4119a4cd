package mail

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/samber/lo"
)

var (
	// ErrNoRecipients is returned when To, Cc and Bcc are all empty.
	ErrNoRecipients = errors.New("mail: no recipients provided")
	// ErrNoSender is returned when neither Message.From nor the default sender is set.
	ErrNoSender = errors.New("mail: no sender provided")
)

// Message is a provider-agnostic email.
type Message struct {
	// From overrides the configured default sender, e.g. `"Brand" <no-reply@x.io>`.
	From     string
	To       []string
	Cc       []string
	Bcc      []string
	Subject  string
	TextBody string
	HTMLBody string
}

// Mail sends messages through one provider.
type Mail interface {
	io.Closer
	Send(ctx context.Context, msg Message) error
}

func cleanAddrs(addrs []string) []string {
	return lo.Uniq(lo.Compact(lo.Map(addrs, func(a string, _ int) string { return strings.TrimSpace(a) })))
}

// normalize trims recipients, applies the default sender and checks that the
// message can be sent.
func normalize(msg Message, defaultFrom string) (Message, error) {
	msg.To = cleanAddrs(msg.To)
	msg.Cc = cleanAddrs(msg.Cc)
	msg.Bcc = cleanAddrs(msg.Bcc)
	if len(msg.To)+len(msg.Cc)+len(msg.Bcc) == 0 {
		return msg, ErrNoRecipients
	}

	if strings.TrimSpace(msg.From) == "" {
		msg.From = defaultFrom
	}
	if strings.TrimSpace(msg.From) == "" {
		return msg, ErrNoSender
	}
	return msg, nil
}
