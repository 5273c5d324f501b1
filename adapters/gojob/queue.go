package gojob

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

type queuedMessage struct {
	msg         *job.ExecutionMessage
	dispatchID  string
	attempt     int
	enqueuedAt  time.Time
	availableAt time.Time
}

// MemoryQueue is a process-local go-job queue. Messages sharing an
// idempotency key are dropped while an earlier one is queued or in flight;
// the duplicate gets the earlier dispatch id back.
type MemoryQueue struct {
	mu          sync.Mutex
	pending     []queuedMessage
	keys        map[string]queue.EnqueueReceipt
	deadLetters []*job.ExecutionMessage
	signal      chan struct{}
	Now         func() time.Time
	NewID       func() string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		keys:   map[string]queue.EnqueueReceipt{},
		signal: make(chan struct{}, 1),
		Now: func() time.Time {
			return time.Now().UTC()
		},
		NewID: uuid.NewString,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if q == nil {
		return queue.EnqueueReceipt{}, jobError("gojob: queue is not configured", nil)
	}
	if msg == nil {
		return queue.EnqueueReceipt{}, jobError("gojob: execution message is required", nil)
	}
	cloned := cloneMessage(msg)
	now := q.now()

	q.mu.Lock()
	key := strings.TrimSpace(cloned.IdempotencyKey)
	if key != "" {
		if receipt, exists := q.keys[key]; exists {
			q.mu.Unlock()
			return receipt, nil
		}
	}
	receipt := queue.EnqueueReceipt{DispatchID: q.nextID(), EnqueuedAt: now}
	if key != "" {
		q.keys[key] = receipt
	}
	q.pending = append(q.pending, queuedMessage{
		msg:         cloned,
		dispatchID:  receipt.DispatchID,
		attempt:     1,
		enqueuedAt:  now,
		availableAt: now,
	})
	q.mu.Unlock()
	q.notify()
	return receipt, nil
}

// Dequeue blocks until a message is available or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, jobError("gojob: queue is not configured", nil)
	}
	for {
		q.mu.Lock()
		next, wait, ok := q.popReadyLocked()
		q.mu.Unlock()
		if ok {
			return &memoryDelivery{queue: q, item: next}, nil
		}

		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if wait > 0 {
			timer = time.NewTimer(wait)
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil, ctx.Err()
		case <-q.signal:
		case <-timeout:
		}
		stopTimer(timer)
	}
}

// Len reports queued messages, including delayed ones.
func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *MemoryQueue) DeadLetters() []*job.ExecutionMessage {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.deadLetters...)
}

func (q *MemoryQueue) popReadyLocked() (queuedMessage, time.Duration, bool) {
	now := q.now()
	var wait time.Duration
	for index, item := range q.pending {
		if !item.availableAt.After(now) {
			q.pending = append(q.pending[:index], q.pending[index+1:]...)
			return item, 0, true
		}
		until := item.availableAt.Sub(now)
		if wait == 0 || until < wait {
			wait = until
		}
	}
	return queuedMessage{}, wait, false
}

func (q *MemoryQueue) settle(item queuedMessage, opts *queue.NackOptions) {
	q.mu.Lock()
	key := strings.TrimSpace(item.msg.IdempotencyKey)
	switch {
	case opts == nil:
		delete(q.keys, key)
	case opts.Disposition == queue.NackDispositionRetry:
		item.attempt++
		item.availableAt = q.now().Add(opts.Delay)
		q.pending = append(q.pending, item)
	case opts.Disposition == queue.NackDispositionDeadLetter:
		delete(q.keys, key)
		q.deadLetters = append(q.deadLetters, item.msg)
	default:
		// failed and canceled jobs are dropped
		delete(q.keys, key)
	}
	q.mu.Unlock()
	q.notify()
}

func (q *MemoryQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) nextID() string {
	if q.NewID != nil {
		return q.NewID()
	}
	return uuid.NewString()
}

func (q *MemoryQueue) now() time.Time {
	if q.Now != nil {
		return q.Now().UTC()
	}
	return time.Now().UTC()
}

type memoryDelivery struct {
	queue   *MemoryQueue
	item    queuedMessage
	settled sync.Once
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return cloneMessage(d.item.msg)
}

// Attempts is 1 on first delivery and grows with each requeue.
func (d *memoryDelivery) Attempts() int {
	return d.item.attempt
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.settled.Do(func() {
		d.queue.settle(d.item, nil)
	})
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if err := queue.ValidateNackOptions(opts); err != nil {
		return jobError("gojob: "+err.Error(), map[string]any{"dispatch_id": d.item.dispatchID})
	}
	d.settled.Do(func() {
		d.queue.settle(d.item, &opts)
	})
	return nil
}

func stopTimer(timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
}

func cloneMessage(msg *job.ExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    msg.DedupPolicy,
	}
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
