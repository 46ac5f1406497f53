// Package memstore is an in-process store.Store. Transactions are serialized behind a
// single mutex and rolled back by restoring a snapshot.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
	"github.com/sudo-init-do/workerlly/internal/taskid"
)

type data struct {
	users      map[string]models.User
	addresses  map[string]models.Address
	categories map[string]models.Category
	cities     map[string]models.City
	rates      map[string]models.Rate // key city|category
	jobs       map[string]*models.Job
	bids       map[string]models.Bid
	locations  map[string]*models.ActiveJobLocation // key job id
	stats      map[string]*models.UserStats
	txs        []models.WalletTransaction
	reviews    []models.Review
}

func newData() *data {
	return &data{
		users:      map[string]models.User{},
		addresses:  map[string]models.Address{},
		categories: map[string]models.Category{},
		cities:     map[string]models.City{},
		rates:      map[string]models.Rate{},
		jobs:       map[string]*models.Job{},
		bids:       map[string]models.Bid{},
		locations:  map[string]*models.ActiveJobLocation{},
		stats:      map[string]*models.UserStats{},
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.addresses {
		c.addresses[k] = v
	}
	for k, v := range d.categories {
		c.categories[k] = v
	}
	for k, v := range d.cities {
		c.cities[k] = v
	}
	for k, v := range d.rates {
		c.rates[k] = v
	}
	for k, v := range d.jobs {
		c.jobs[k] = v.Clone()
	}
	for k, v := range d.bids {
		c.bids[k] = v
	}
	for k, v := range d.locations {
		c.locations[k] = cloneLocation(v)
	}
	for k, v := range d.stats {
		c.stats[k] = v.Clone()
	}
	c.txs = append([]models.WalletTransaction(nil), d.txs...)
	c.reviews = append([]models.Review(nil), d.reviews...)
	return c
}

type Store struct {
	mu   *sync.Mutex
	d    **data
	inTx bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	d := newData()
	return &Store{mu: &sync.Mutex{}, d: &d}
}

func (s *Store) acquire() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) db() *data { return *s.d }

func (s *Store) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.db().clone()
	tx := &Store{mu: s.mu, d: s.d, inTx: true}
	if err := fn(tx); err != nil {
		*s.d = snapshot
		return err
	}
	return nil
}

// Seeding for catalogue data that other services own.

func (s *Store) PutUser(u models.User) {
	defer s.acquire()()
	s.db().users[u.ID] = u
}

func (s *Store) PutAddress(a models.Address) {
	defer s.acquire()()
	s.db().addresses[a.ID] = a
}

func (s *Store) PutCategory(c models.Category) {
	defer s.acquire()()
	s.db().categories[c.ID] = c
}

func (s *Store) PutCity(c models.City) {
	defer s.acquire()()
	s.db().cities[c.ID] = c
}

func (s *Store) PutRate(r models.Rate) {
	defer s.acquire()()
	s.db().rates[r.CityID+"|"+r.CategoryID] = r
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	defer s.acquire()()
	u, ok := s.db().users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u.Roles = append([]string(nil), u.Roles...)
	return &u, nil
}

func (s *Store) GetAddress(_ context.Context, id string) (*models.Address, error) {
	defer s.acquire()()
	a, ok := s.db().addresses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*models.Category, error) {
	defer s.acquire()()
	c, ok := s.db().categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) GetCity(_ context.Context, id string) (*models.City, error) {
	defer s.acquire()()
	c, ok := s.db().cities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) GetRate(_ context.Context, cityID, categoryID string) (*models.Rate, error) {
	defer s.acquire()()
	r, ok := s.db().rates[cityID+"|"+categoryID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) InsertJob(_ context.Context, j *models.Job) error {
	defer s.acquire()()
	d := s.db()
	if _, ok := d.jobs[j.ID]; ok {
		return store.ErrDuplicate
	}
	for _, other := range d.jobs {
		if other.TaskID == j.TaskID {
			return store.ErrDuplicate
		}
	}
	j.Version = 1
	d.jobs[j.ID] = j.Clone()
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*models.Job, error) {
	defer s.acquire()()
	j, ok := s.db().jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return j.Clone(), nil
}

func (s *Store) LockJob(ctx context.Context, id string) (*models.Job, error) {
	return s.GetJob(ctx, id)
}

func (s *Store) UpdateJob(_ context.Context, j *models.Job) error {
	defer s.acquire()()
	cur, ok := s.db().jobs[j.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != j.Version {
		return store.ErrConflict
	}
	j.Version++
	s.db().jobs[j.ID] = j.Clone()
	return nil
}

func (s *Store) ListJobs(_ context.Context, f store.JobFilter) ([]models.Job, error) {
	defer s.acquire()()
	var out []models.Job
	for _, j := range s.db().jobs {
		if f.ProviderID != "" && j.ProviderID != f.ProviderID {
			continue
		}
		if f.AssignedTo != "" && !j.IsAssignedTo(f.AssignedTo) {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, j.Status) {
			continue
		}
		if !f.CreatedBefore.IsZero() && !j.CreatedAt.Before(f.CreatedBefore) {
			continue
		}
		out = append(out, *j.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsStatus(list []models.JobStatus, s models.JobStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *Store) MaxTaskSequence(_ context.Context, prefix string) (int, error) {
	defer s.acquire()()
	max := 0
	for _, j := range s.db().jobs {
		if strings.HasPrefix(j.TaskID, prefix+"-") {
			if n := taskid.Sequence(j.TaskID); n > max {
				max = n
			}
		}
	}
	return max, nil
}

func (s *Store) CountJobsByStatus(_ context.Context) (map[models.JobStatus]int, error) {
	defer s.acquire()()
	out := map[models.JobStatus]int{}
	for _, j := range s.db().jobs {
		out[j.Status]++
	}
	return out, nil
}

func (s *Store) InsertBid(_ context.Context, b *models.Bid) error {
	defer s.acquire()()
	d := s.db()
	if _, ok := d.bids[b.ID]; ok {
		return store.ErrDuplicate
	}
	for _, other := range d.bids {
		if other.JobID == b.JobID && other.SeekerID == b.SeekerID && other.Status == models.BidPending {
			return store.ErrDuplicate
		}
	}
	d.bids[b.ID] = *b
	return nil
}

func (s *Store) GetBid(_ context.Context, id string) (*models.Bid, error) {
	defer s.acquire()()
	b, ok := s.db().bids[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (s *Store) ListBidsForJob(_ context.Context, jobID string) ([]models.Bid, error) {
	defer s.acquire()()
	var out []models.Bid
	for _, b := range s.db().bids {
		if b.JobID == jobID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *Store) FindPendingBid(_ context.Context, jobID, seekerID string) (*models.Bid, error) {
	defer s.acquire()()
	for _, b := range s.db().bids {
		if b.JobID == jobID && b.SeekerID == seekerID && b.Status == models.BidPending {
			return &b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) SetBidStatus(_ context.Context, id string, from, to models.BidStatus, at time.Time) error {
	defer s.acquire()()
	b, ok := s.db().bids[id]
	if !ok {
		return store.ErrNotFound
	}
	if b.Status != from {
		return store.ErrConflict
	}
	b.Status = to
	b.UpdatedAt = at
	s.db().bids[id] = b
	return nil
}

func (s *Store) RejectOtherBids(_ context.Context, jobID, seekerID, keepBidID string, at time.Time) (int, error) {
	defer s.acquire()()
	n := 0
	for id, b := range s.db().bids {
		if id == keepBidID || b.Status != models.BidPending {
			continue
		}
		if b.JobID == jobID || b.SeekerID == seekerID {
			b.Status = models.BidRejected
			b.UpdatedAt = at
			s.db().bids[id] = b
			n++
		}
	}
	return n, nil
}

func cloneLocation(l *models.ActiveJobLocation) *models.ActiveJobLocation {
	c := *l
	if l.SeekerLocation != nil {
		p := *l.SeekerLocation
		c.SeekerLocation = &p
	}
	return &c
}

func (s *Store) UpsertActiveLocation(_ context.Context, l *models.ActiveJobLocation) error {
	defer s.acquire()()
	s.db().locations[l.JobID] = cloneLocation(l)
	return nil
}

func (s *Store) GetActiveLocation(_ context.Context, jobID string) (*models.ActiveJobLocation, error) {
	defer s.acquire()()
	l, ok := s.db().locations[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneLocation(l), nil
}

func (s *Store) UpdateSeekerLocation(_ context.Context, seekerID string, p geo.Point, at time.Time) (*models.ActiveJobLocation, error) {
	defer s.acquire()()
	for _, l := range s.db().locations {
		if l.SeekerID == seekerID && l.Status == models.LocationActive {
			pt := p
			l.SeekerLocation = &pt
			l.LastUpdated = at
			return cloneLocation(l), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CloseActiveLocation(_ context.Context, jobID string, at time.Time) error {
	defer s.acquire()()
	l, ok := s.db().locations[jobID]
	if !ok {
		return store.ErrNotFound
	}
	l.Status = models.LocationClosed
	l.LastUpdated = at
	return nil
}

func (s *Store) InsertUserStats(_ context.Context, st *models.UserStats) error {
	defer s.acquire()()
	if _, ok := s.db().stats[st.UserID]; ok {
		return store.ErrDuplicate
	}
	st.Version = 1
	s.db().stats[st.UserID] = st.Clone()
	return nil
}

func (s *Store) GetUserStats(_ context.Context, userID string) (*models.UserStats, error) {
	defer s.acquire()()
	st, ok := s.db().stats[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return st.Clone(), nil
}

func (s *Store) LockUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	return s.GetUserStats(ctx, userID)
}

func (s *Store) UpdateUserStats(_ context.Context, st *models.UserStats) error {
	defer s.acquire()()
	cur, ok := s.db().stats[st.UserID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != st.Version {
		return store.ErrConflict
	}
	st.Version++
	s.db().stats[st.UserID] = st.Clone()
	return nil
}

func (s *Store) ListUserStatsIDs(_ context.Context) ([]string, error) {
	defer s.acquire()()
	out := make([]string, 0, len(s.db().stats))
	for id := range s.db().stats {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) InsertWalletTransaction(_ context.Context, t *models.WalletTransaction) error {
	defer s.acquire()()
	s.db().txs = append(s.db().txs, *t)
	return nil
}

func (s *Store) ListWalletTransactions(_ context.Context, userID string) ([]models.WalletTransaction, error) {
	defer s.acquire()()
	var out []models.WalletTransaction
	for _, t := range s.db().txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) FindJobTransaction(_ context.Context, userID, jobID string, typ models.TxType, reason string) (*models.WalletTransaction, error) {
	defer s.acquire()()
	txs := s.db().txs
	for i := len(txs) - 1; i >= 0; i-- {
		t := txs[i]
		if t.UserID == userID && t.JobID != nil && *t.JobID == jobID && t.Type == typ && t.Reason == reason {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) InsertReview(_ context.Context, r *models.Review) error {
	defer s.acquire()()
	for _, other := range s.db().reviews {
		if other.JobID == r.JobID && other.ReviewerRole == r.ReviewerRole {
			return store.ErrDuplicate
		}
	}
	s.db().reviews = append(s.db().reviews, *r)
	return nil
}

func (s *Store) ListReviewsForJob(_ context.Context, jobID string) ([]models.Review, error) {
	defer s.acquire()()
	var out []models.Review
	for _, r := range s.db().reviews {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ListReviewsForUser(_ context.Context, revieweeID string, limit int) ([]models.Review, error) {
	defer s.acquire()()
	var out []models.Review
	rs := s.db().reviews
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i].RevieweeID == revieweeID {
			out = append(out, rs[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
