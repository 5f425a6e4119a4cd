package inbound

import (
	"context"
	"log/slog"
	"slices"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	messenger messaging.Messaging,
	uuid uid.StringID,
	uc uc,
	ins instrument.Instrumentation,
) {
	mqHandler := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	enableConsumerNames := cfg.GetArray("modules.otp.consumer_names")
	concurrency := cfg.GetInt("modules.otp.consumer_concurrency")

	var consumers = []struct {
		name    string // subscription name on every driver
		topic   string // destination where publisher sent message
		handler messaging.Handler
	}{
		{
			name:    event.OTPChallengeRequestedConsumerDelivery,
			topic:   event.OTPChallengeRequestedDestination,
			handler: mqHandler.ChallengeRequestedDelivery,
		},
	}

	for _, consumer := range consumers {
		if len(enableConsumerNames) > 0 && slices.Contains(enableConsumerNames, consumer.name) {
			routine.Go(ctx, func(pCtx context.Context) error {
				slog.InfoContext(ctx, "Running job for handling consumer", "consumer", consumer.name)
				return messenger.Subscribe(pCtx,
					consumer.topic,
					messaging.Subscription{Name: consumer.name, Concurrency: concurrency},
					consumer.handler,
				)
			})
		}
	}
}
