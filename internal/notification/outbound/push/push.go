package push

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/codes"

	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/push"
)

// ErrDisabled is returned when no push gateway is configured.
var ErrDisabled = errors.New("push: gateway not configured")

type Push struct {
	client push.Push
	ins    instrument.Instrumentation
}

func New(client push.Push, ins instrument.Instrumentation) *Push {
	return &Push{client: client, ins: ins}
}

func (p *Push) Send(ctx context.Context, n entity.Push) (string, error) {
	ctx, span := p.ins.Tracer("notification.outbound.push").Start(ctx, "Send")
	defer span.End()

	if p.client == nil {
		span.RecordError(ErrDisabled)
		span.SetStatus(codes.Error, ErrDisabled.Error())
		return "", ErrDisabled
	}

	name, err := p.client.Send(ctx, push.Notification{
		Token: n.Token,
		Title: n.Title,
		Body:  n.Body,
		Data:  n.Data,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return name, nil
}
