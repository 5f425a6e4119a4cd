package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	netmail "net/mail"
	"strings"
	texttemplate "text/template"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/sms"
)

var (
	ErrEmailDisabled  = errors.New("delivery: email channel not configured")
	ErrSMSDisabled    = errors.New("delivery: sms channel not configured")
	ErrUnknownChannel = errors.New("delivery: unknown channel")
)

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<div style="font-family:Arial; padding:20px;">
  <h2 style="color:#1a73e8;">🔐 {{.Brand}} Verification</h2>
  <p>Your OTP is:</p>
  <h1>{{.Code}}</h1>
  <p>This code expires in {{.Minutes}} minutes.</p>
</div>
`))

var textBody = texttemplate.Must(texttemplate.New("text").Parse(`{{.Brand}} Verification

Your OTP is: {{.Code}}

This code expires in {{.Minutes}} minutes.
`))

type content struct {
	Brand   string
	Code    string
	Minutes int
}

type Config struct {
	Brand string
	// FromAddress is shown with Brand as the display name. Empty keeps the
	// mail provider's default sender.
	FromAddress string
	TTL         time.Duration
}

// Sender delivers a challenge code over the channel matching its identity.
type Sender struct {
	mail mail.Mail
	sms  sms.Sender
	cfg  Config
	ins  instrument.Instrumentation
}

// New builds a Sender. Either channel may be nil; sending to a nil channel
// fails with ErrEmailDisabled or ErrSMSDisabled.
func New(m mail.Mail, s sms.Sender, cfg Config, ins instrument.Instrumentation) *Sender {
	if cfg.Brand == "" {
		cfg.Brand = "OTP Gate"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}

	return &Sender{mail: m, sms: s, cfg: cfg, ins: ins}
}

func (s *Sender) Send(ctx context.Context, c entity.Challenge) (err error) {
	ctx, span := s.ins.Tracer("otp.outbound.delivery").Start(ctx, "Send")
	span.SetAttributes(attribute.String("otp.channel", c.Channel.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	switch c.Channel {
	case entity.ChannelEmail:
		return s.sendEmail(ctx, c)
	case entity.ChannelSMS:
		if s.sms == nil {
			return ErrSMSDisabled
		}
		return s.sms.SendOTP(ctx, c.Identity, c.Code)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownChannel, c.Channel)
	}
}

func (s *Sender) sendEmail(ctx context.Context, c entity.Challenge) error {
	if s.mail == nil {
		return ErrEmailDisabled
	}

	msg, err := s.Compose(c)
	if err != nil {
		return err
	}

	return s.mail.Send(ctx, msg)
}

// Compose renders the email for c.
func (s *Sender) Compose(c entity.Challenge) (mail.Message, error) {
	data := content{
		Brand:   s.cfg.Brand,
		Code:    c.Code,
		Minutes: max(1, int(s.cfg.TTL.Round(time.Minute)/time.Minute)),
	}

	var h, t bytes.Buffer
	if err := htmlBody.Execute(&h, data); err != nil {
		return mail.Message{}, err
	}
	if err := textBody.Execute(&t, data); err != nil {
		return mail.Message{}, err
	}

	msg := mail.Message{
		To:       []string{c.Identity},
		Subject:  "Your OTP Code - " + s.cfg.Brand,
		HTMLBody: h.String(),
		TextBody: t.String(),
	}
	if addr := strings.TrimSpace(s.cfg.FromAddress); addr != "" {
		msg.From = (&netmail.Address{Name: s.cfg.Brand, Address: addr}).String()
	}

	return msg, nil
}
