package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pinto-org/beanstalk-snapshot/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// Task is a unit of work submitted to a queue.
type Task func(ctx context.Context) error

// QueueError aggregates every task failure observed on one queue.
type QueueError struct {
	Queue string
	Errs  []error
}

func (e *QueueError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("[scheduler:%s] %d task(s) failed:\n%s", queuePrefix(e.Queue), len(e.Errs), strings.Join(msgs, "\n"))
}

func (e *QueueError) Unwrap() []error {
	return e.Errs
}

type queue struct {
	id       string
	limit    int
	sem      *semaphore.Weighted
	inFlight int
	waiting  int
	peak     int
	errs     []error
	idle     chan struct{}
}

func (q *queue) busy() bool {
	return q.inFlight > 0 || q.waiting > 0
}

// enter must be called with the scheduler lock held, before a counter is incremented.
func (q *queue) enter() {
	if !q.busy() {
		q.idle = make(chan struct{})
	}
}

// leave must be called with the scheduler lock held, after a counter is decremented.
func (q *queue) leave() {
	if !q.busy() {
		close(q.idle)
	}
}

// Scheduler owns the state of every queue. It is safe for concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	queues map[string]*queue
	logger *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		queues: make(map[string]*queue),
		logger: logger.With("component", "scheduler"),
	}
}

// NewQueueID returns prefix plus a time and random suffix, so repeated or
// nested runs of the same logical operation get distinct queues.
func NewQueueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

func queuePrefix(id string) string {
	if i := strings.Index(id, "-"); i > 0 {
		return id[:i]
	}
	return id
}

// lookup returns the queue for id, creating it with limit on first use.
// The limit of an existing queue is not changed.
func (s *Scheduler) lookup(id string, limit int) *queue {
	q, ok := s.queues[id]
	if !ok {
		if limit <= 0 {
			limit = 1
		}
		idle := make(chan struct{})
		close(idle)
		q = &queue{
			id:    id,
			limit: limit,
			sem:   semaphore.NewWeighted(int64(limit)),
			idle:  idle,
		}
		s.queues[id] = q
	}
	return q
}

// Submit admits task to queue id. It returns once the task has started,
// waiting in FIFO order while limit tasks of the same queue are running.
// A non-nil error means the task was never started (ctx ended while waiting).
func (s *Scheduler) Submit(ctx context.Context, id string, limit int, task Task) error {
	s.mu.Lock()
	q := s.lookup(id, limit)
	q.enter()
	q.waiting++
	s.mu.Unlock()

	if !q.sem.TryAcquire(1) {
		metrics.SchedulerQueueWaits.WithLabelValues(queuePrefix(id)).Inc()
		if err := q.sem.Acquire(ctx, 1); err != nil {
			s.mu.Lock()
			q.waiting--
			q.leave()
			s.mu.Unlock()
			return fmt.Errorf("submit to %s: %w", id, err)
		}
	}

	s.mu.Lock()
	q.waiting--
	q.inFlight++
	if q.inFlight > q.peak {
		q.peak = q.inFlight
	}
	s.mu.Unlock()
	metrics.SchedulerTasksSubmitted.WithLabelValues(queuePrefix(id)).Inc()

	go s.run(ctx, q, task)
	return nil
}

func (s *Scheduler) run(ctx context.Context, q *queue, task Task) {
	err := safeRun(ctx, task)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		metrics.SchedulerTasksFailed.WithLabelValues(queuePrefix(q.id)).Inc()
		q.errs = append(q.errs, err)
	}
	q.inFlight--
	q.sem.Release(1)
	q.leave()
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Drain waits until queue id has no running or waiting tasks, then clears
// its state. If any task failed it returns a *QueueError listing every
// failure. Draining an unknown queue returns nil.
func (s *Scheduler) Drain(ctx context.Context, id string) error {
	errs, err := s.wait(ctx, id)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		s.logger.Warn("queue drained with failures", "queue", id, "failures", len(errs))
		return &QueueError{Queue: id, Errs: errs}
	}
	return nil
}

// Settle is Drain without failure propagation.
func (s *Scheduler) Settle(ctx context.Context, id string) error {
	_, err := s.wait(ctx, id)
	return err
}

func (s *Scheduler) wait(ctx context.Context, id string) ([]error, error) {
	for {
		s.mu.Lock()
		q, ok := s.queues[id]
		if !ok {
			s.mu.Unlock()
			return nil, nil
		}
		if !q.busy() {
			delete(s.queues, id)
			errs := q.errs
			s.mu.Unlock()
			return errs, nil
		}
		idle := q.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Stats reports the current and peak in-flight counts and the number of
// waiting submissions for queue id.
func (s *Scheduler) Stats(id string) (inFlight, peak, waiting int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		return 0, 0, 0
	}
	return q.inFlight, q.peak, q.waiting
}
