package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

type DispatchPushInput struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

type DispatchPushOutput struct {
	MessageID string
}

func (s *Usecase) DispatchPush(ctx context.Context, in DispatchPushInput) (*DispatchPushOutput, error) {
	ctx, span := s.startSpan(ctx, "DispatchPush")
	defer span.End()

	in.Token = strings.TrimSpace(in.Token)
	if in.Token == "" || strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Body) == "" {
		return nil, goerror.NewInvalidFormat("Missing fields")
	}

	id, err := s.repoPush.Send(ctx, entity.Push{
		Token: in.Token,
		Title: in.Title,
		Body:  in.Body,
		Data:  in.Data,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo send push notification", "error", err)
		return nil, goerror.NewServer(err, "Failed to send notification")
	}

	slog.InfoContext(ctx, "push notification sent", "message_id", id)

	return &DispatchPushOutput{MessageID: id}, nil
}
