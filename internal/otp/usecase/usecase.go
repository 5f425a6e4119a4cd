package usecase

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/ledger"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/cooldown"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

// Delivery modes read from otp.delivery.mode.
const (
	DeliveryModeSync  = "sync"
	DeliveryModeAsync = "async"
)

const msgFailedSend = "Failed to send OTP"

type ChallengeRequestedEvent struct {
	ChallengeID string
	Identity    string
	Channel     string
	Code        string
	ExpiresAt   time.Time
}

type ChallengeVerifiedEvent struct {
	ChallengeID string
	Identity    string
	VerifiedAt  time.Time
}

type otpLedger interface {
	Request(ctx context.Context, identity string) (entity.Challenge, error)
	Check(ctx context.Context, identity, code string) (ledger.Result, error)
	Revoke(ctx context.Context, c entity.Challenge) error
}

type repoDelivery interface {
	Send(ctx context.Context, c entity.Challenge) error
}

type repoMessaging interface {
	PublishChallengeRequested(ctx context.Context, msg ChallengeRequestedEvent) error
	PublishChallengeVerified(ctx context.Context, msg ChallengeVerifiedEvent) error
}

type Usecase struct {
	ledger        otpLedger
	repoDelivery  repoDelivery
	repoMessaging repoMessaging
	cooldown      cooldown.Limiter
	validator     validator.Validator
	cfg           config.Config
	clock         clock.Clocker
	jwt           jwt.JWT
	ins           instrument.Instrumentation
}

// Dependency wires a Usecase. RepoMessaging, Cooldown and JWT are optional.
type Dependency struct {
	Ledger        otpLedger
	RepoDelivery  repoDelivery
	RepoMessaging repoMessaging
	Cooldown      cooldown.Limiter
	Validator     validator.Validator
	Config        config.Config
	Clock         clock.Clocker
	JWT           jwt.JWT
	Instrument    instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		ledger:        dep.Ledger,
		repoDelivery:  dep.RepoDelivery,
		repoMessaging: dep.RepoMessaging,
		cooldown:      dep.Cooldown,
		validator:     dep.Validator,
		cfg:           dep.Config,
		clock:         dep.Clock,
		jwt:           dep.JWT,
		ins:           dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("otp.usecase").Start(ctx, name)
}

// normalizeIdentity trims the identity, lower-cases emails and strips
// formatting characters from phone numbers.
func normalizeIdentity(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "+") {
		return strings.ToLower(s)
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ', r == '-', r == '(', r == ')', r == '.':
			return -1
		case unicode.IsSpace(r):
			return -1
		}
		return r
	}, s)
}
