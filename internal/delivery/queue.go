package delivery

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer is full; the message is dropped.
	ErrQueueFull = errors.New("delivery queue full")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("delivery queue closed")
)

// sendTimeout bounds a single Send from the worker.
const sendTimeout = 30 * time.Second

// FailureFunc is called from the worker when a message could not be sent.
type FailureFunc func(msg Message, err error)

// Queue is an in-process Enqueuer: a buffered channel drained by one worker goroutine.
// Enqueue never waits for the sender.
type Queue struct {
	sender    Sender
	onFailure FailureFunc
	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewQueue starts a queue delivering through sender. onFailure may be nil.
func NewQueue(sender Sender, buffer int, onFailure FailureFunc) *Queue {
	if buffer <= 0 {
		buffer = 1
	}
	q := &Queue{
		sender:    sender,
		onFailure: onFailure,
		ch:        make(chan Message, buffer),
		done:      make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case msg := <-q.ch:
			q.send(msg)
		case <-q.done:
			for {
				select {
				case msg := <-q.ch:
					q.send(msg)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) send(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := q.sender.Send(ctx, msg); err != nil {
		log.Printf("delivery: send to %s failed: %v", msg.To, err)
		if q.onFailure != nil {
			q.onFailure(msg, err)
		}
	}
}

// Enqueue hands msg to the worker. When the buffer is full the message is dropped and
// ErrQueueFull returned.
func (q *Queue) Enqueue(ctx context.Context, msg Message) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- msg:
		return nil
	case <-q.done:
		return ErrQueueClosed
	default:
		q.dropped.Add(1)
		log.Printf("delivery: queue full; dropped message for %s", msg.To)
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits until the buffered ones are sent.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.done)
		q.wg.Wait()
	})
	return nil
}

// Dropped returns how many messages were dropped because the buffer was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
