package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sudo-init-do/workerlly/internal/logger"
)

// Fanout moves frames from the node that received a seeker update to whichever nodes
// hold the provider subscriptions.
type Fanout interface {
	// Publish reports whether any subscriber, local or remote, was reached.
	Publish(ctx context.Context, f LocationFrame) (bool, error)
	Tracked(ctx context.Context, jobID string) error
	Untracked(ctx context.Context, jobID string) error
	// Closed ends tracking for jobID everywhere.
	Closed(ctx context.Context, jobID string) error
}

// Local serves a single process.
type Local struct {
	hub *Hub
}

func NewLocal(h *Hub) *Local { return &Local{hub: h} }

func (l *Local) Publish(_ context.Context, f LocationFrame) (bool, error) {
	return l.hub.Deliver(f) > 0, nil
}

func (l *Local) Tracked(context.Context, string) error   { return nil }
func (l *Local) Untracked(context.Context, string) error { return nil }

func (l *Local) Closed(_ context.Context, jobID string) error {
	l.hub.Drop(jobID)
	return nil
}

const (
	channelPrefix = "workerlly:location:"
	trackersKey   = "workerlly:trackers:"
	trackersTTL   = 24 * time.Hour
)

type envelope struct {
	Origin string        `json:"origin"`
	Close  bool          `json:"close,omitempty"`
	JobID  string        `json:"job_id"`
	Frame  LocationFrame `json:"frame"`
}

// Redis spreads frames across nodes over redis pub/sub. Each node records itself in a
// per-job tracker set while it holds a subscription, so a publish only goes over the
// wire when another node is listening.
type Redis struct {
	rdb  *redis.Client
	hub  *Hub
	node string
}

func NewRedis(rdb *redis.Client, h *Hub, nodeID string) *Redis {
	return &Redis{rdb: rdb, hub: h, node: nodeID}
}

func (r *Redis) Publish(ctx context.Context, f LocationFrame) (bool, error) {
	local := r.hub.Deliver(f) > 0

	nodes, err := r.rdb.SMembers(ctx, trackersKey+f.JobID).Result()
	if err != nil {
		return local, err
	}
	remote := false
	for _, n := range nodes {
		if n != r.node {
			remote = true
			break
		}
	}
	if !remote {
		return local, nil
	}
	if err := r.send(ctx, envelope{Origin: r.node, JobID: f.JobID, Frame: f}); err != nil {
		return local, err
	}
	return true, nil
}

func (r *Redis) send(ctx context.Context, e envelope) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, channelPrefix+e.JobID, b).Err()
}

func (r *Redis) Tracked(ctx context.Context, jobID string) error {
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, trackersKey+jobID, r.node)
	pipe.Expire(ctx, trackersKey+jobID, trackersTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Untracked(ctx context.Context, jobID string) error {
	return r.rdb.SRem(ctx, trackersKey+jobID, r.node).Err()
}

func (r *Redis) Closed(ctx context.Context, jobID string) error {
	r.hub.Drop(jobID)
	if err := r.rdb.Del(ctx, trackersKey+jobID).Err(); err != nil {
		return err
	}
	return r.send(ctx, envelope{Origin: r.node, Close: true, JobID: jobID})
}

// Start runs Run in the background and returns once the subscription is live. A
// subscribe failure is returned directly; after that the channel receives Run's
// result when it stops.
func (r *Redis) Start(ctx context.Context) (<-chan error, error) {
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, ready) }()
	select {
	case <-ready:
		return done, nil
	case err := <-done:
		if err == nil {
			err = errors.New("tracking: fanout stopped before subscribing")
		}
		return nil, err
	}
}

// Run delivers frames published by other nodes until ctx ends. ready, if not nil, is
// closed once the subscription is live.
func (r *Redis) Run(ctx context.Context, ready chan<- struct{}) error {
	ps := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	log := logger.FromContext(ctx).With("component", "tracking_fanout", "node", r.node)
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e envelope
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.Warn("bad fanout payload", "error", err)
				continue
			}
			if e.Origin == r.node {
				continue
			}
			if e.Close {
				r.hub.Drop(e.JobID)
				continue
			}
			r.hub.Deliver(e.Frame)
		}
	}
}
