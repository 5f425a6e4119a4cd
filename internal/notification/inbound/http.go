package inbound

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

type uc interface {
	DispatchPush(ctx context.Context, in usecase.DispatchPushInput) (*usecase.DispatchPushOutput, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	r.POST("/api/v1/notification/push", end.SendNotification)
	r.POST("/send-notification", end.SendNotification)
}
