package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Turn is one queued unit of work for a chat: a user message or a
// pagination callback.
type Turn struct {
	ChatID     int64
	Text       string
	Callback   string
	CallbackID string
	MessageID  int

	Ctx context.Context
}

// Queue manages per-chat lanes with a global concurrency semaphore. Each
// chat gets its own FIFO channel (lane) so turns within a chat are processed
// sequentially, while the semaphore limits the total number of concurrent
// turn processors across all chats.
type Queue struct {
	lanes     map[int64]chan *Turn
	semaphore *semaphore.Weighted
	processor func(*Turn) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue creates a Queue that allows up to maxConcurrent turns to execute
// simultaneously across all chat lanes.
func NewQueue(maxConcurrent int64) *Queue {
	return &Queue{
		lanes:     make(map[int64]chan *Turn),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for _, lane := range q.lanes {
		close(lane)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// SetProcessor sets the function invoked for each dequeued Turn.
func (q *Queue) SetProcessor(fn func(*Turn) error) {
	q.processor = fn
}

// Enqueue adds a Turn to the chat's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full.
func (q *Queue) Enqueue(turn *Turn) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	lane, exists := q.lanes[turn.ChatID]
	if !exists {
		lane = make(chan *Turn, 100)
		q.lanes[turn.ChatID] = lane
		q.wg.Add(1)
		go q.processLane(turn.ChatID, lane)
	}

	select {
	case lane <- turn:
		return nil
	default:
		return fmt.Errorf("queue full for chat %d", turn.ChatID)
	}
}

// processLane drains a single chat lane, acquiring a semaphore slot before
// running the processor synchronously. This keeps strict FIFO ordering
// within a chat while the semaphore limits cross-chat parallelism.
func (q *Queue) processLane(chatID int64, lane chan *Turn) {
	defer q.wg.Done()
	for {
		select {
		case turn, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			if q.processor != nil {
				turn.Ctx = q.ctx
				if err := q.processor(turn); err != nil {
					slog.Error("turn failed", "chat_id", chatID, "error", err)
				}
			}
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}
