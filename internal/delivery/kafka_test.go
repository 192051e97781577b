package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewKafkaQueue_RequiresBrokersAndTopic(t *testing.T) {
	if _, err := NewKafkaQueue(nil, "topic", nil); err == nil {
		t.Error("missing brokers should fail")
	}
	if _, err := NewKafkaQueue([]string{"localhost:9092"}, "", nil); err == nil {
		t.Error("missing topic should fail")
	}
	q, err := NewKafkaQueue([]string{"localhost:9092"}, "orbit-account-delivery", nil)
	if err != nil {
		t.Fatalf("NewKafkaQueue: %v", err)
	}
	_ = q.Close()
}

func TestKafkaQueue_Enqueue(t *testing.T) {
	w := &fakeWriter{}
	q := &KafkaQueue{writer: w, topic: "t"}
	msg := OTPMessage("alice@example.com", "123456")
	if err := q.Enqueue(context.Background(), msg); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "alice@example.com" {
		t.Errorf("key = %q, want recipient", w.msgs[0].Key)
	}
	var got Message
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != msg {
		t.Errorf("payload = %+v, want %+v", got, msg)
	}

	w.err = errors.New("broker down")
	if err := q.Enqueue(context.Background(), msg); err == nil {
		t.Error("Enqueue should surface writer errors")
	}
	_ = q.Close()
	if !w.closed {
		t.Error("Close should close the writer")
	}
}

type fakeReader struct {
	records []kafka.Message
	cancel  context.CancelFunc
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.records) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.records[0]
	r.records = r.records[1:]
	return m, nil
}

func TestConsume(t *testing.T) {
	ok, _ := json.Marshal(OTPMessage("alice@example.com", "111111"))
	bad, _ := json.Marshal(OTPMessage("bob@example.com", "222222"))
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{
		records: []kafka.Message{{Value: ok}, {Value: []byte("{not json")}, {Value: bad}},
		cancel:  cancel,
	}
	sendErr := errors.New("rejected")
	var sent []string
	sender := SenderFunc(func(ctx context.Context, msg Message) error {
		sent = append(sent, msg.To)
		if msg.To == "bob@example.com" {
			return sendErr
		}
		return nil
	})
	var failed []string
	err := Consume(ctx, r, sender, func(msg Message, err error) { failed = append(failed, msg.To) })
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if len(sent) != 2 || sent[0] != "alice@example.com" || sent[1] != "bob@example.com" {
		t.Errorf("sent = %v", sent)
	}
	if len(failed) != 1 || failed[0] != "bob@example.com" {
		t.Errorf("failed = %v", failed)
	}
}
