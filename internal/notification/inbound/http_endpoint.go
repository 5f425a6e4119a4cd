package inbound

import (
	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

type HTTPEndpoint struct {
	uc uc
}

func (h *HTTPEndpoint) SendNotification(r *router.Request) (any, error) {
	var req SendNotificationRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.DispatchPush(r.Context(), usecase.DispatchPushInput{
		Token: req.Token,
		Title: req.Title,
		Body:  req.Body,
		Data:  req.Data,
	})
	if err != nil {
		return nil, err
	}

	return SendNotificationResponse{Response: resp.MessageID}, nil
}
