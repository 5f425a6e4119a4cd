package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
)

type fakeMail struct {
	sent []mail.Message
	err  error
}

func (f *fakeMail) Send(_ context.Context, msg mail.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeMail) Close() error { return nil }

type fakeSMS struct {
	phone, code string
	err         error
}

func (f *fakeSMS) SendOTP(_ context.Context, phone, code string) error {
	f.phone, f.code = phone, code
	return f.err
}

func TestSendEmail(t *testing.T) {
	m := &fakeMail{}
	s := New(m, nil, Config{Brand: "Acme", FromAddress: "otp@acme.test", TTL: 5 * time.Minute}, instrument.NewNoop())

	err := s.Send(context.Background(), entity.Challenge{Identity: "a@b.co", Code: "482913", Channel: entity.ChannelEmail})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.sent) != 1 {
		t.Fatalf("sent %d messages", len(m.sent))
	}

	msg := m.sent[0]
	if msg.Subject != "Your OTP Code - Acme" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.From != `"Acme" <otp@acme.test>` {
		t.Errorf("From = %q", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0] != "a@b.co" {
		t.Errorf("To = %v", msg.To)
	}
	for _, want := range []string{"<h1>482913</h1>", "Acme Verification", "expires in 5 minutes"} {
		if !strings.Contains(msg.HTMLBody, want) {
			t.Errorf("HTMLBody missing %q:\n%s", want, msg.HTMLBody)
		}
	}
	if !strings.Contains(msg.TextBody, "Your OTP is: 482913") {
		t.Errorf("TextBody = %q", msg.TextBody)
	}
}

func TestComposeEscapesBrand(t *testing.T) {
	s := New(nil, nil, Config{Brand: "<b>Shop</b>"}, instrument.NewNoop())

	msg, err := s.Compose(entity.Challenge{Identity: "a@b.co", Code: "123456"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(msg.HTMLBody, "<b>Shop</b>") {
		t.Fatalf("brand not escaped: %s", msg.HTMLBody)
	}
	if msg.From != "" {
		t.Fatalf("From = %q, want provider default", msg.From)
	}
}

func TestSendSMS(t *testing.T) {
	f := &fakeSMS{}
	s := New(nil, f, Config{}, instrument.NewNoop())

	if err := s.Send(context.Background(), entity.Challenge{Identity: "+919812345678", Code: "111222", Channel: entity.ChannelSMS}); err != nil {
		t.Fatal(err)
	}
	if f.phone != "+919812345678" || f.code != "111222" {
		t.Fatalf("got %q %q", f.phone, f.code)
	}
}

func TestSendErrors(t *testing.T) {
	boom := errors.New("smtp down")

	tests := []struct {
		name string
		s    *Sender
		c    entity.Challenge
		want error
	}{
		{"email disabled", New(nil, nil, Config{}, instrument.NewNoop()), entity.Challenge{Channel: entity.ChannelEmail}, ErrEmailDisabled},
		{"sms disabled", New(nil, nil, Config{}, instrument.NewNoop()), entity.Challenge{Channel: entity.ChannelSMS}, ErrSMSDisabled},
		{"unknown", New(nil, nil, Config{}, instrument.NewNoop()), entity.Challenge{}, ErrUnknownChannel},
		{"provider", New(&fakeMail{err: boom}, nil, Config{}, instrument.NewNoop()), entity.Challenge{Identity: "a@b.co", Channel: entity.ChannelEmail}, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Send(context.Background(), tt.c); !errors.Is(err, tt.want) {
				t.Fatalf("Send() err = %v, want %v", err, tt.want)
			}
		})
	}
}
