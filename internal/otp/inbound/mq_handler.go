package inbound

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, msg *messaging.Message) context.Context {
	if cID := msg.Header(keyOfCorrelationID); cID != "" {
		return instrument.SetCorrelationID(ctx, cID)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

func (h *MQHandler) ChallengeRequestedDelivery(ctx context.Context, msg *messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg)

	ctx, span := h.ins.Tracer("otp.inbound.mq").Start(ctx, "ChallengeRequestedDelivery")
	defer span.End()

	slog.InfoContext(ctx, "consume: otp challenge requested delivery", "msg_id", msg.ID)

	var payload event.OTPChallengeRequestedMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of otp challenge requested", "msg_id", msg.ID, "error", err)
		return nil
	}

	if err := h.uc.ConsumeChallengeRequested(ctx, usecase.ConsumeChallengeRequestedInput{
		ChallengeID: payload.ChallengeID,
		Identity:    payload.Identity,
		Channel:     payload.Channel,
		Code:        payload.Code,
		ExpiresAt:   payload.ExpiresAt,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume otp challenge requested", "challenge_id", payload.ChallengeID, "error", err)
		return err
	}

	return nil
}
