package mq

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/codes"

	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type Messaging struct {
	client messaging.Publisher
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Publisher, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

func (m *Messaging) PublishChallengeRequested(ctx context.Context, msg usecase.ChallengeRequestedEvent) error {
	ctx, span := m.ins.Tracer("otp.outbound.mq").Start(ctx, "PublishChallengeRequested")
	defer span.End()

	body, err := json.Marshal(event.OTPChallengeRequestedMessage{
		ChallengeID: msg.ChallengeID,
		Identity:    msg.Identity,
		Channel:     msg.Channel,
		Code:        msg.Code,
		ExpiresAt:   msg.ExpiresAt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := m.publish(ctx, event.OTPChallengeRequestedDestination, body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (m *Messaging) PublishChallengeVerified(ctx context.Context, msg usecase.ChallengeVerifiedEvent) error {
	ctx, span := m.ins.Tracer("otp.outbound.mq").Start(ctx, "PublishChallengeVerified")
	defer span.End()

	body, err := json.Marshal(event.OTPChallengeVerifiedMessage{
		ChallengeID: msg.ChallengeID,
		Identity:    msg.Identity,
		VerifiedAt:  msg.VerifiedAt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := m.publish(ctx, event.OTPChallengeVerifiedDestination, body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (m *Messaging) publish(ctx context.Context, topic string, body []byte) error {
	return m.client.Publish(ctx, topic, messaging.Message{
		Body:    body,
		Headers: map[string]string{keyOfCorrelationID: instrument.GetCorrelationID(ctx)},
	})
}
