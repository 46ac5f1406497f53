// Package tracking carries a seeker's live position to the provider tracking the job.
package tracking

import (
	"sync"
	"time"

	"github.com/sudo-init-do/workerlly/internal/metrics"
)

const (
	FrameLocationUpdate = "location_update"
	FrameConfirmation   = "location_update_confirmation"
	FrameLocation       = "location"
	FrameStartTracking  = "start_tracking"
	FrameStopTracking   = "stop_tracking"
	FrameTrackingStart  = "tracking_started"
	FrameTrackingStop   = "tracking_stopped"
	FramePing           = "ping"
	FramePong           = "pong"
	FrameError          = "error"
)

// LocationFrame is pushed to tracking providers.
type LocationFrame struct {
	Type        string    `json:"type"`
	JobID       string    `json:"job_id"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	LastUpdated time.Time `json:"last_updated"`
}

// Confirmation answers a seeker's location_update.
type Confirmation struct {
	Type           string `json:"type"`
	JobID          string `json:"job_id"`
	SentToProvider bool   `json:"sent_to_provider"`
}

// Subscriber receives frames for the jobs it tracks. Deliver must not block.
type Subscriber interface {
	Deliver(f LocationFrame) bool
	Closed(jobID string)
}

type hubEntry map[Subscriber]struct{}

// Hub is the per-process table of tracking subscriptions.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]hubEntry
	metrics *metrics.Collector
}

func NewHub(m *metrics.Collector) *Hub {
	return &Hub{subs: make(map[string]hubEntry), metrics: m}
}

// Subscribe adds sub for jobID and reports whether it is the first local subscriber.
func (h *Hub) Subscribe(jobID string, sub Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.subs[jobID]
	if !ok {
		e = make(hubEntry)
		h.subs[jobID] = e
	}
	if _, dup := e[sub]; dup {
		return false
	}
	e[sub] = struct{}{}
	h.metrics.SubscriptionAdded()
	return len(e) == 1
}

// Unsubscribe removes sub and reports whether jobID has no local subscribers left.
func (h *Hub) Unsubscribe(jobID string, sub Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.subs[jobID]
	if !ok {
		return false
	}
	if _, ok := e[sub]; !ok {
		return false
	}
	delete(e, sub)
	h.metrics.SubscriptionsRemoved(1)
	if len(e) == 0 {
		delete(h.subs, jobID)
		return true
	}
	return false
}

// Drop removes every subscription for jobID and tells each subscriber.
func (h *Hub) Drop(jobID string) int {
	h.mu.Lock()
	e := h.subs[jobID]
	delete(h.subs, jobID)
	h.mu.Unlock()

	for sub := range e {
		sub.Closed(jobID)
	}
	h.metrics.SubscriptionsRemoved(len(e))
	return len(e)
}

// Deliver hands f to local subscribers of its job and returns how many accepted it.
func (h *Hub) Deliver(f LocationFrame) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for sub := range h.subs[f.JobID] {
		if sub.Deliver(f) {
			n++
		}
	}
	return n
}

func (h *Hub) Count(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}

func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, e := range h.subs {
		n += len(e)
	}
	return n
}
