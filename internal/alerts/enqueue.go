package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// AsynqNotifier enqueues events for the processor.
type AsynqNotifier struct {
	client *asynq.Client
}

func NewAsynqNotifier(opt asynq.RedisConnOpt) *AsynqNotifier {
	return &AsynqNotifier{client: asynq.NewClient(opt)}
}

func (n *AsynqNotifier) Notify(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	task, err := NewTask(e)
	if err != nil {
		return err
	}
	_, err = n.client.EnqueueContext(ctx, task, asynq.Queue(queueNotifications), asynq.MaxRetry(5))
	return err
}

func (n *AsynqNotifier) Close() error { return n.client.Close() }

// NewTask encodes e as an asynq task named after its type.
func NewTask(e Event) (*asynq.Task, error) {
	if e.Type == "" {
		return nil, fmt.Errorf("alerts: event without type")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(e.Type, b), nil
}
