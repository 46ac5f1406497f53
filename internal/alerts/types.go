package alerts

import (
	"context"
	"time"
)

// Task type constants
const (
	TaskJobNew         = "job:new"
	TaskJobRateUpdated = "job:rate_updated"
	TaskBidNew         = "bid:new"
	TaskBidAccepted    = "bid:accepted"
	TaskJobCancelled   = "job:cancelled"
	TaskJobStarted     = "job:started"
	TaskJobCompleted   = "job:completed"
	TaskJobPaid        = "job:paid"
	TaskReviewNew      = "review:new"
)

const queueNotifications = "notifications"

// Event is the payload carried by every lifecycle notification.
type Event struct {
	Type       string            `json:"type"`
	JobID      string            `json:"job_id"`
	TaskID     string            `json:"task_id,omitempty"`
	Recipients []string          `json:"recipients"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Notifier hands lifecycle events to the push pipeline.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
