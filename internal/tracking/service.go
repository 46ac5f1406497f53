package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/logger"
	"github.com/sudo-init-do/workerlly/internal/metrics"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

const DefaultPresenceWindow = 2 * time.Minute

const (
	Online  = "online"
	Offline = "offline"
)

// Presence tells whether a seeker counts as online for a tracked job.
func Presence(pos *geo.Point, last, now time.Time, window time.Duration) string {
	if pos == nil || last.IsZero() || now.Sub(last) > window {
		return Offline
	}
	return Online
}

// Snapshot is what a provider sees when polling a job's tracking state.
type Snapshot struct {
	JobID            string     `json:"job_id"`
	ProviderLocation geo.Point  `json:"provider_location"`
	SeekerLocation   *geo.Point `json:"seeker_location"`
	LastUpdated      time.Time  `json:"last_updated"`
	SeekerStatus     string     `json:"seeker_status"`
}

type Service struct {
	st      store.Store
	hub     *Hub
	fanout  Fanout
	window  time.Duration
	metrics *metrics.Collector
	now     func() time.Time
}

// NewService wires the store and fanout. A nil fanout delivers in-process only.
func NewService(st store.Store, hub *Hub, f Fanout, window time.Duration, m *metrics.Collector) *Service {
	if f == nil {
		f = NewLocal(hub)
	}
	if window <= 0 {
		window = DefaultPresenceWindow
	}
	return &Service{st: st, hub: hub, fanout: f, window: window, metrics: m, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Hub() *Hub { return s.hub }

// UpdateLocation records the seeker's position on their active job and forwards it to
// any provider tracking that job.
func (s *Service) UpdateLocation(ctx context.Context, seekerID string, p geo.Point) (Confirmation, error) {
	const op = "tracking.UpdateLocation"
	if !p.Valid() {
		return Confirmation{}, apperr.New(apperr.InvalidInput, op, "invalid coordinates")
	}
	now := s.now().UTC()
	log := logger.FromContext(ctx)

	s.rememberLastLocation(ctx, seekerID, p, now)

	loc, err := s.st.UpdateSeekerLocation(ctx, seekerID, p, now)
	if errors.Is(err, store.ErrNotFound) {
		return Confirmation{}, apperr.New(apperr.NotFound, op, "no active job")
	}
	if err != nil {
		return Confirmation{}, apperr.Wrap(apperr.Internal, op, err)
	}

	frame := LocationFrame{Type: FrameLocation, JobID: loc.JobID, Lat: p.Lat, Lon: p.Lon, LastUpdated: now}
	sent, err := s.fanout.Publish(ctx, frame)
	if err != nil {
		log.Warn("location fanout failed", "job_id", loc.JobID, "error", err)
	}
	s.metrics.LocationUpdate(sent)
	return Confirmation{Type: FrameConfirmation, JobID: loc.JobID, SentToProvider: sent}, nil
}

// rememberLastLocation keeps the seeker's latest position for future bid ETAs. It is
// not part of the tracking write and failures only log.
func (s *Service) rememberLastLocation(ctx context.Context, seekerID string, p geo.Point, now time.Time) {
	err := s.st.InTx(ctx, func(q store.Queries) error {
		us, err := q.LockUserStats(ctx, seekerID)
		if err != nil {
			return err
		}
		us.LastLocation = &p
		us.UpdatedAt = now
		return q.UpdateUserStats(ctx, us)
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.FromContext(ctx).Warn("last location not saved", "seeker_id", seekerID, "error", err)
	}
}

// activeFor loads the job's active location after checking that providerID posted it.
func (s *Service) activeFor(ctx context.Context, op, providerID, jobID string) (*models.ActiveJobLocation, error) {
	job, err := s.st.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, op, "job not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	if job.ProviderID != providerID {
		return nil, apperr.New(apperr.Forbidden, op, "only the job owner can track it")
	}
	loc, err := s.st.GetActiveLocation(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, op, "job is not being tracked")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	if loc.Status != models.LocationActive {
		return nil, apperr.New(apperr.InvalidState, op, "tracking has ended for this job")
	}
	return loc, nil
}

func (s *Service) Snapshot(ctx context.Context, providerID, jobID string) (*Snapshot, error) {
	loc, err := s.activeFor(ctx, "tracking.Snapshot", providerID, jobID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(loc), nil
}

func (s *Service) snapshot(loc *models.ActiveJobLocation) *Snapshot {
	return &Snapshot{
		JobID:            loc.JobID,
		ProviderLocation: loc.ProviderLocation,
		SeekerLocation:   loc.SeekerLocation,
		LastUpdated:      loc.LastUpdated,
		SeekerStatus:     Presence(loc.SeekerLocation, loc.LastUpdated, s.now(), s.window),
	}
}

// Track subscribes sub to a job's live frames and returns the state at subscription
// time, so a seeker who never pushes still shows as offline.
func (s *Service) Track(ctx context.Context, providerID, jobID string, sub Subscriber) (*Snapshot, error) {
	loc, err := s.activeFor(ctx, "tracking.Track", providerID, jobID)
	if err != nil {
		return nil, err
	}
	if s.hub.Subscribe(jobID, sub) {
		if err := s.fanout.Tracked(ctx, jobID); err != nil {
			logger.FromContext(ctx).Warn("tracker registration failed", "job_id", jobID, "error", err)
		}
	}
	return s.snapshot(loc), nil
}

func (s *Service) Untrack(ctx context.Context, jobID string, sub Subscriber) {
	if s.hub.Unsubscribe(jobID, sub) {
		if err := s.fanout.Untracked(ctx, jobID); err != nil {
			logger.FromContext(ctx).Warn("tracker removal failed", "job_id", jobID, "error", err)
		}
	}
}

// Close ends every subscription for jobID. Called once the job leaves the tracked stages.
func (s *Service) Close(ctx context.Context, jobID string) {
	if err := s.fanout.Closed(ctx, jobID); err != nil {
		logger.FromContext(ctx).Warn("tracking close failed", "job_id", jobID, "error", err)
	}
}
