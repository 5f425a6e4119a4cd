package usecase

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

type repoPush interface {
	Send(ctx context.Context, n entity.Push) (string, error)
}

type Usecase struct {
	repoPush repoPush
	ins      instrument.Instrumentation
}

type Dependency struct {
	RepoPush   repoPush
	Instrument instrument.Instrumentation
}

func NewNotification(dep Dependency) *Usecase {
	return &Usecase{
		repoPush: dep.RepoPush,
		ins:      dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("notification.usecase").Start(ctx, name)
}
