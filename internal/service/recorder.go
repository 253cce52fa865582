package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/pkg/logger"
	"github.com/reddiedev/tenext-app/pkg/metrics"
)

// DefaultRecordTimeout bounds one persistence or publish attempt.
const DefaultRecordTimeout = 5 * time.Second

// MessageStore is the persistence used for finalized messages.
type MessageStore interface {
	ListMessages(ctx context.Context, threadID string) ([]model.ChatMessage, error)
	AppendMessage(ctx context.Context, threadID string, msg model.ChatMessage) (model.ChatMessage, error)
}

// EventPublisher publishes thread events to the event log.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.ThreadEvent) (uint64, error)
}

type recordJob struct {
	ctx context.Context
	fn  func(ctx context.Context)
}

type threadQueue struct {
	jobs []recordJob
	idle chan struct{}
}

// Recorder persists finalized messages and publishes thread events without
// blocking the streaming session. Writes for one thread happen in the order
// they were recorded; failures are logged and counted, never returned.
type Recorder struct {
	messages  MessageStore
	publisher EventPublisher
	logger    *logger.Logger
	timeout   time.Duration

	mu     sync.Mutex
	queues map[string]*threadQueue
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder. publisher may be nil.
func NewRecorder(messages MessageStore, publisher EventPublisher, timeout time.Duration, log *logger.Logger) *Recorder {
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	return &Recorder{
		messages:  messages,
		publisher: publisher,
		logger:    log,
		timeout:   timeout,
		queues:    make(map[string]*threadQueue),
	}
}

// RecordMessage stores msg and announces it as message.created. The event
// carries the message as stored, which has a new id when msg's id was taken.
func (r *Recorder) RecordMessage(ctx context.Context, threadID string, msg model.ChatMessage) {
	r.enqueue(ctx, threadID, func(ctx context.Context) {
		stored, err := r.messages.AppendMessage(ctx, threadID, msg)
		if err != nil {
			metrics.RecorderFailuresTotal.WithLabelValues("store").Inc()
			r.logger.Error("failed to persist message",
				zap.String("thread_id", threadID),
				zap.Int("message_id", msg.ID),
				zap.Error(err),
			)
			return
		}
		if stored.ID != msg.ID {
			metrics.MessageRenumberedTotal.Inc()
			r.logger.Warn("message id already taken, stored under a new id",
				zap.String("thread_id", threadID),
				zap.Int("message_id", msg.ID),
				zap.Int("stored_id", stored.ID),
			)
		}
		r.publish(ctx, &model.ThreadEvent{
			ThreadID: threadID,
			Type:     model.EventTypeMessage,
			Message:  &stored,
		})
	})
}

// RecordFailure announces a failed session as session.failed.
func (r *Recorder) RecordFailure(ctx context.Context, threadID string, cause error) {
	reason := "stream failed"
	if cause != nil {
		reason = cause.Error()
	}
	r.enqueue(ctx, threadID, func(ctx context.Context) {
		r.publish(ctx, &model.ThreadEvent{
			ThreadID: threadID,
			Type:     model.EventTypeSessionFailed,
			Reason:   reason,
		})
	})
}

// Flush waits until everything recorded for threadID so far is written.
func (r *Recorder) Flush(ctx context.Context, threadID string) error {
	r.mu.Lock()
	q, ok := r.queues[threadID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-q.idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every queue has drained.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) publish(ctx context.Context, event *model.ThreadEvent) {
	if r.publisher == nil {
		return
	}
	event.ID = uuid.Must(uuid.NewV7()).String()
	event.CreatedAt = time.Now().UTC()

	if _, err := r.publisher.PublishEvent(ctx, event); err != nil {
		metrics.RecorderFailuresTotal.WithLabelValues("events").Inc()
		r.logger.Warn("failed to publish thread event",
			zap.String("thread_id", event.ThreadID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

func (r *Recorder) enqueue(ctx context.Context, threadID string, fn func(context.Context)) {
	job := recordJob{ctx: context.WithoutCancel(ctx), fn: fn}

	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[threadID]
	if !ok {
		q = &threadQueue{idle: make(chan struct{})}
		r.queues[threadID] = q
		r.wg.Add(1)
		go r.drain(threadID, q)
	}
	q.jobs = append(q.jobs, job)
}

func (r *Recorder) drain(threadID string, q *threadQueue) {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		if len(q.jobs) == 0 {
			delete(r.queues, threadID)
			close(q.idle)
			r.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		r.mu.Unlock()

		ctx, cancel := context.WithTimeout(job.ctx, r.timeout)
		job.fn(ctx)
		cancel()
	}
}
