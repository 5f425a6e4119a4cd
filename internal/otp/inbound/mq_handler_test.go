package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

func TestChallengeRequestedDelivery(t *testing.T) {
	f := &fakeUC{}
	h := &MQHandler{uc: f, uuid: uid.NewUUID(), ins: instrument.NewNoop()}
	exp := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)

	body, _ := json.Marshal(event.OTPChallengeRequestedMessage{
		ChallengeID: "7", Identity: "a@b.co", Channel: "email", Code: "123456", ExpiresAt: exp,
	})
	msg := &messaging.Message{ID: "m1", Body: body, Headers: map[string]string{keyOfCorrelationID: "cid"}}

	if err := h.ChallengeRequestedDelivery(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(f.consumed) != 1 {
		t.Fatalf("consumed %d", len(f.consumed))
	}
	got := f.consumed[0]
	if got.ChallengeID != "7" || got.Code != "123456" || !got.ExpiresAt.Equal(exp) {
		t.Fatalf("input = %+v", got)
	}
}

func TestChallengeRequestedDeliveryBadBody(t *testing.T) {
	f := &fakeUC{}
	h := &MQHandler{uc: f, uuid: uid.NewUUID(), ins: instrument.NewNoop()}

	if err := h.ChallengeRequestedDelivery(context.Background(), &messaging.Message{Body: []byte("{")}); err != nil {
		t.Fatalf("err = %v, want nil for poison message", err)
	}
	if len(f.consumed) != 0 {
		t.Fatal("poison message reached the usecase")
	}
}

func TestChallengeRequestedDeliveryError(t *testing.T) {
	boom := errors.New("smtp down")
	h := &MQHandler{uc: &fakeUC{consumeErr: boom}, uuid: uid.NewUUID(), ins: instrument.NewNoop()}

	err := h.ChallengeRequestedDelivery(context.Background(), &messaging.Message{Body: []byte(`{"identity":"a@b.co"}`)})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
