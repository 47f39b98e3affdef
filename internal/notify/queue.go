package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Queue decouples callers from delivery: Dispatch enqueues and returns, a
// single worker started by Start forwards messages to the next dispatcher.
// When the buffer is full the message is dropped and logged.
type Queue struct {
	mu     sync.RWMutex
	next   Dispatcher
	ch     chan Message
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewQueue(next Dispatcher, size int, logger *slog.Logger) *Queue {
	return &Queue{
		next:   next,
		ch:     make(chan Message, size),
		logger: logger,
	}
}

// Dispatch enqueues msg. The caller's context is not carried to the worker,
// so delivery outlives the request that triggered it.
func (q *Queue) Dispatch(_ context.Context, msg Message) {
	select {
	case q.ch <- msg:
	default:
		q.logger.Warn("notification queue full, dropping message",
			"kind", msg.Kind, "recipient_id", msg.RecipientID, "event_id", msg.EventID)
	}
}

// Start begins the delivery worker.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	q.mu.Unlock()

	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				q.drain()
				return
			case msg := <-q.ch:
				q.next.Dispatch(ctx, msg)
			}
		}
	}()
}

// drain delivers whatever is still buffered at shutdown.
func (q *Queue) drain() {
	ctx := context.Background()
	for {
		select {
		case msg := <-q.ch:
			q.next.Dispatch(ctx, msg)
		default:
			return
		}
	}
}

// Stop stops the worker after flushing buffered messages.
func (q *Queue) Stop() {
	q.mu.RLock()
	cancel := q.cancel
	done := q.done
	q.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	return len(q.ch)
}
