package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-apotek/internal/events"
)

// TypeInvoiceFinalized is the task type carrying a finalized invoice.
const TypeInvoiceFinalized = "invoice:finalized"

// Enqueuer is the part of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskType maps an event topic to its task type, e.g. invoice.finalized -> invoice:finalized.
func TaskType(topic string) string {
	return strings.ReplaceAll(strings.TrimSpace(topic), ".", ":")
}

// Publisher turns domain events into asynq tasks. Only topics listed in Topics are
// enqueued; when Topics is empty only invoice.finalized is.
type Publisher struct {
	Client      Enqueuer
	Queue       string
	MaxAttempts int
	// Retention keeps completed tasks around so a replayed event id is rejected.
	Retention time.Duration
	Topics    []string
}

// Publish enqueues ev with its id as the task id, so a republished event is a no-op.
func (p Publisher) Publish(ctx context.Context, ev events.Event) error {
	if p.Client == nil {
		return errors.New("queue: client not configured")
	}
	if !p.accepts(ev.Topic) {
		return nil
	}
	opts := []asynq.Option{asynq.TaskID(ev.ID)}
	if p.Queue != "" {
		opts = append(opts, asynq.Queue(p.Queue))
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	opts = append(opts, asynq.MaxRetry(maxAttempts))
	if p.Retention > 0 {
		opts = append(opts, asynq.Retention(p.Retention))
	}
	task := asynq.NewTask(TaskType(ev.Topic), ev.Payload)
	if _, err := p.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("queue: enqueue %s: %w", task.Type(), err)
	}
	return nil
}

func (p Publisher) accepts(topic string) bool {
	if len(p.Topics) == 0 {
		return topic == events.TopicInvoiceFinalized
	}
	for _, t := range p.Topics {
		if t == topic {
			return true
		}
	}
	return false
}
