package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeKafkaReader struct {
	queue     []kafka.Message
	committed []int64
	fetchErr  error
	commitErr error
}

func (r *fakeKafkaReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		return kafka.Message{}, r.fetchErr
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *fakeKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	if r.commitErr != nil {
		return r.commitErr
	}
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func newTestKafka(t *testing.T, attempts uint64) *Kafka {
	t.Helper()
	k, err := NewKafka(KafkaConfig{
		Brokers:          []string{"127.0.0.1:9092"},
		HandlerAttempts:  attempts,
		HandlerBaseDelay: time.Millisecond,
		HandlerMaxDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func TestKafkaConsumeSurvivesHandlerFailure(t *testing.T) {
	k := newTestKafka(t, 3)
	endOfStream := errors.New("end of stream")
	reader := &fakeKafkaReader{
		queue: []kafka.Message{
			{Offset: 1, Value: []byte("bad"), Headers: []kafka.Header{{Key: kafkaIDHeader, Value: []byte("m1")}}},
			{Offset: 2, Value: []byte("good"), Headers: []kafka.Header{{Key: kafkaIDHeader, Value: []byte("m2")}}},
		},
		fetchErr: endOfStream,
	}

	calls := map[string]int{}
	err := k.consume(context.Background(), "otp", reader, func(_ context.Context, msg *Message) error {
		calls[msg.ID]++
		if string(msg.Body) == "bad" {
			return errors.New("smtp down")
		}
		return nil
	})

	if !errors.Is(err, endOfStream) {
		t.Fatalf("consume() = %v, want fetch error", err)
	}
	if calls["m1"] != 3 {
		t.Fatalf("failing handler called %d times, want 3", calls["m1"])
	}
	if calls["m2"] != 1 {
		t.Fatalf("next message handled %d times, want 1", calls["m2"])
	}
	if len(reader.committed) != 2 || reader.committed[0] != 1 || reader.committed[1] != 2 {
		t.Fatalf("committed offsets = %v, want [1 2]", reader.committed)
	}
}

func TestKafkaConsumeRecoversAfterRetry(t *testing.T) {
	k := newTestKafka(t, 5)
	reader := &fakeKafkaReader{
		queue:    []kafka.Message{{Offset: 7, Value: []byte("flaky")}},
		fetchErr: errors.New("end of stream"),
	}

	calls := 0
	_ = k.consume(context.Background(), "otp", reader, func(context.Context, *Message) error {
		calls++
		if calls < 2 {
			return errors.New("temporary")
		}
		return nil
	})

	if calls != 2 {
		t.Fatalf("handler called %d times, want 2", calls)
	}
	if len(reader.committed) != 1 || reader.committed[0] != 7 {
		t.Fatalf("committed offsets = %v, want [7]", reader.committed)
	}
}

func TestKafkaConsumeStopsOnCommitError(t *testing.T) {
	k := newTestKafka(t, 1)
	commitErr := errors.New("group rebalanced")
	reader := &fakeKafkaReader{
		queue:     []kafka.Message{{Offset: 1}, {Offset: 2}},
		commitErr: commitErr,
	}

	calls := 0
	err := k.consume(context.Background(), "otp", reader, func(context.Context, *Message) error {
		calls++
		return nil
	})

	if !errors.Is(err, commitErr) {
		t.Fatalf("consume() = %v, want commit error", err)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestKafkaConsumeStopsOnCancelDuringRetry(t *testing.T) {
	k := newTestKafka(t, 100)
	reader := &fakeKafkaReader{queue: []kafka.Message{{Offset: 1}}}

	ctx, cancel := context.WithCancel(context.Background())
	err := k.consume(ctx, "otp", reader, func(context.Context, *Message) error {
		cancel()
		return errors.New("smtp down")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("consume() = %v, want context.Canceled", err)
	}
	if len(reader.committed) != 0 {
		t.Fatalf("committed offsets = %v, want none", reader.committed)
	}
}

func TestNewKafkaHandlerDefaults(t *testing.T) {
	k := newTestKafka(t, 0)
	if k.attempts != defaultKafkaHandlerAttempts || k.baseDelay != time.Millisecond || k.maxDelay != time.Millisecond {
		t.Fatalf("handler retry = %d %v %v", k.attempts, k.baseDelay, k.maxDelay)
	}
}
