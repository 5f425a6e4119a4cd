package notification

import (
	"github.com/shandysiswandi/otpgate/internal/notification/inbound"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/push"
	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	pkgpush "github.com/shandysiswandi/otpgate/internal/pkg/push"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

type Dependency struct {
	Instrument instrument.Instrumentation
	Router     *router.Router
	Push       pkgpush.Push
}

func New(dep Dependency) error {
	repoPush := push.New(dep.Push, dep.Instrument)

	uc := usecase.NewNotification(usecase.Dependency{
		RepoPush:   repoPush,
		Instrument: dep.Instrument,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	return nil
}
