package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/workerlly/internal/logger"
)

var allTasks = []string{
	TaskJobNew, TaskJobRateUpdated, TaskBidNew, TaskBidAccepted, TaskJobCancelled,
	TaskJobStarted, TaskJobCompleted, TaskJobPaid, TaskReviewNew,
}

// Processor consumes notification tasks. Delivery to devices belongs to the push
// service; here each event is decoded and logged.
type Processor struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewProcessor(opt asynq.RedisConnOpt) *Processor {
	mux := asynq.NewServeMux()
	for _, t := range allTasks {
		mux.HandleFunc(t, HandleEvent)
	}
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues:      map[string]int{queueNotifications: 10},
	})
	return &Processor{server: server, mux: mux}
}

// Start runs the server in the background.
func (p *Processor) Start() error {
	return p.server.Start(p.mux)
}

func (p *Processor) Shutdown() {
	p.server.Shutdown()
}

func HandleEvent(ctx context.Context, t *asynq.Task) error {
	var e Event
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		return fmt.Errorf("%s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	logger.FromContext(ctx).Info("[notify] delivered",
		"type", t.Type(), "job_id", e.JobID, "recipients", e.Recipients, "title", e.Title)
	return nil
}
