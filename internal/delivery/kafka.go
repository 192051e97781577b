package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used by KafkaQueue.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue is an Enqueuer that publishes messages as JSON to a Kafka topic for
// cmd/worker to send. Writes are asynchronous; failures are reported to onFailure.
type KafkaQueue struct {
	writer messageWriter
	topic  string
}

// NewKafkaQueue creates a queue writing to topic on brokers. Call Close when shutting down.
func NewKafkaQueue(brokers []string, topic string, onFailure FailureFunc) (*KafkaQueue, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("delivery: kafka brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err == nil {
				return
			}
			log.Printf("delivery: kafka write of %d message(s) failed: %v", len(messages), err)
			if onFailure == nil {
				return
			}
			for _, m := range messages {
				var msg Message
				if json.Unmarshal(m.Value, &msg) == nil {
					onFailure(msg, err)
				}
			}
		},
	}
	return &KafkaQueue{writer: writer, topic: topic}, nil
}

// Enqueue serializes msg as JSON keyed by recipient, so one identity's messages stay ordered.
func (q *KafkaQueue) Enqueue(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(msg.To), Value: payload}); err != nil {
		return fmt.Errorf("delivery: kafka enqueue: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}

// MessageReader is the subset of *kafka.Reader used by Consume.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Consume reads messages from r and sends each through sender until ctx is done.
// Undecodable records and send failures are logged and skipped.
func Consume(ctx context.Context, r MessageReader, sender Sender, onFailure FailureFunc) error {
	for {
		km, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("delivery: kafka read error: %v", err)
			continue
		}
		var msg Message
		if err := json.Unmarshal(km.Value, &msg); err != nil {
			log.Printf("delivery: skipping undecodable record at offset %d: %v", km.Offset, err)
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err = sender.Send(sendCtx, msg)
		cancel()
		if err != nil {
			log.Printf("delivery: send to %s failed: %v", msg.To, err)
			if onFailure != nil {
				onFailure(msg, err)
			}
		}
	}
}
