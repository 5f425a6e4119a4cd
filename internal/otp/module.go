package otp

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/otp/inbound"
	"github.com/shandysiswandi/otpgate/internal/otp/ledger"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/delivery"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/mq"
	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/cooldown"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/sms"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

// ErrDeliveryConsumerDisabled is returned when async delivery runs on the
// in-process bus without its consumer, so published codes would never be sent.
var ErrDeliveryConsumerDisabled = errors.New("otp: async delivery on the memory bus requires " +
	event.OTPChallengeRequestedConsumerDelivery + " in modules.otp.consumer_names")

type Dependency struct {
	Ctx        context.Context
	Store      ledger.Store
	Messaging  messaging.Messaging
	Config     config.Config
	Instrument instrument.Instrumentation
	UID        uid.NumberID
	UUID       uid.StringID
	Clock      clock.Clocker
	Goroutine  *goroutine.Manager
	Validator  validator.Validator
	Router     *router.Router
	Mail       mail.Mail
	SMS        sms.Sender
	Cooldown   cooldown.Limiter
	JWT        jwt.JWT
}

func New(dep Dependency) error {
	if err := checkAsyncDelivery(dep); err != nil {
		return err
	}

	ttl := dep.Config.GetSecond("otp.ttl_seconds")

	ldg, err := ledger.New(ledger.Config{
		Store: dep.Store,
		Clock: dep.Clock,
		TTL:   ttl,
		NewID: func() string { return strconv.FormatInt(dep.UID.Generate(), 10) },
	})
	if err != nil {
		return err
	}

	repoDelivery := delivery.New(dep.Mail, dep.SMS, delivery.Config{
		Brand:       dep.Config.GetString("otp.brand"),
		FromAddress: dep.Config.GetString("otp.delivery.email.from_address"),
		TTL:         ldg.TTL(),
	}, dep.Instrument)

	ucDep := usecase.Dependency{
		Ledger:       ldg,
		RepoDelivery: repoDelivery,
		Cooldown:     dep.Cooldown,
		Validator:    dep.Validator,
		Config:       dep.Config,
		Clock:        dep.Clock,
		JWT:          dep.JWT,
		Instrument:   dep.Instrument,
	}
	if dep.Messaging != nil {
		ucDep.RepoMessaging = mq.NewMessaging(dep.Messaging, dep.Instrument)
	}

	uc := usecase.New(ucDep)

	inbound.RegisterHTTPEndpoint(dep.Router, uc)
	if dep.Ctx != nil && dep.Messaging != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)
	}

	return nil
}

func checkAsyncDelivery(dep Dependency) error {
	if !strings.EqualFold(dep.Config.GetString("otp.delivery.mode"), usecase.DeliveryModeAsync) {
		return nil
	}
	if _, ok := dep.Messaging.(*messaging.Memory); !ok {
		return nil
	}
	if !slices.Contains(dep.Config.GetArray("modules.otp.consumer_names"), event.OTPChallengeRequestedConsumerDelivery) {
		return ErrDeliveryConsumerDisabled
	}
	return nil
}
