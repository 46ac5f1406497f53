package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/geo"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobOngoing    JobStatus = "ongoing"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobPaid       JobStatus = "paid"
	JobCancelled  JobStatus = "cancelled"
	JobRejected   JobStatus = "rejected"
)

// Terminal reports whether the live-location record for a job in s is closed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobPaid, JobCancelled, JobRejected:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool { return m == PaymentCash || m == PaymentOnline }

type Role string

const (
	RoleProvider Role = "provider"
	RoleSeeker   Role = "seeker"
	RoleAdmin    Role = "admin"
	// RoleSystem marks jobs closed by the stale-job sweep.
	RoleSystem Role = "system"
)

type AddressSnapshot struct {
	AddressID    string    `json:"address_id"`
	AddressLine1 string    `json:"address_line1"`
	AddressLine2 string    `json:"address_line2,omitempty"`
	Apartment    string    `json:"apartment,omitempty"`
	Landmark     string    `json:"landmark,omitempty"`
	Label        string    `json:"label,omitempty"`
	Type         string    `json:"type,omitempty"`
	CityID       string    `json:"city_id"`
	Location     geo.Point `json:"location"`
}

type RateChange struct {
	Rate      decimal.Decimal `json:"rate"`
	ChangedAt time.Time       `json:"changed_at"`
}

type OTP struct {
	Code       string     `json:"code,omitempty"`
	Verified   bool       `json:"verified"`
	IssuedAt   time.Time  `json:"issued_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

type Payment struct {
	Paid   bool          `json:"paid"`
	Method PaymentMethod `json:"method"`
	PaidAt time.Time     `json:"paid_at"`
}

// ReviewMark is the per-side review placeholder stored on a paid job.
type ReviewMark struct {
	Done     bool       `json:"done"`
	ReviewID *string    `json:"review_id,omitempty"`
	RatedAt  *time.Time `json:"rated_at,omitempty"`
}

type Job struct {
	ID             string          `json:"id"`
	TaskID         string          `json:"task_id"`
	ProviderID     string          `json:"user_id"`
	CategoryID     string          `json:"category_id"`
	SubCategoryIDs []string        `json:"sub_category_ids"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Address        AddressSnapshot `json:"address"`

	HourlyRate  decimal.Decimal `json:"hourly_rate"`
	CurrentRate decimal.Decimal `json:"current_rate"`
	RateHistory []RateChange    `json:"rate_history"`

	Status           JobStatus  `json:"status"`
	AssignedTo       *string    `json:"assigned_to"`
	AcceptedBidID    *string    `json:"accepted_bid_id,omitempty"`
	EstimatedMinutes int        `json:"estimated_minutes,omitempty"`
	BookedAt         *time.Time `json:"booked_at,omitempty"`

	StartOTP  *OTP       `json:"start_otp,omitempty"`
	DoneOTP   *OTP       `json:"done_otp,omitempty"`
	IsReached bool       `json:"is_reached"`
	ReachedAt *time.Time `json:"reached_at,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	DoneAt    *time.Time `json:"done_at,omitempty"`

	BillableHours int             `json:"billable_hours,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Payment       *Payment        `json:"payment,omitempty"`

	ProviderReview *ReviewMark `json:"provider_review,omitempty"`
	SeekerReview   *ReviewMark `json:"seeker_review,omitempty"`

	CancelReason string `json:"cancel_reason,omitempty"`
	CancelledBy  Role   `json:"cancelled_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"-"`
}

// Stage is the status with the arrival sub-state folded in: an ongoing job whose
// seeker has arrived reports "reached".
func (j *Job) Stage() string {
	if j.Status == JobOngoing && j.IsReached {
		return "reached"
	}
	return string(j.Status)
}

func (j *Job) IsAssignedTo(userID string) bool {
	return j.AssignedTo != nil && *j.AssignedTo == userID
}

func (j *Job) IsParticipant(userID string) bool {
	return j.ProviderID == userID || j.IsAssignedTo(userID)
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.SubCategoryIDs = append([]string(nil), j.SubCategoryIDs...)
	c.RateHistory = append([]RateChange(nil), j.RateHistory...)
	c.AssignedTo = cloneString(j.AssignedTo)
	c.AcceptedBidID = cloneString(j.AcceptedBidID)
	c.BookedAt = cloneTime(j.BookedAt)
	c.StartOTP = j.StartOTP.clone()
	c.DoneOTP = j.DoneOTP.clone()
	c.ReachedAt = cloneTime(j.ReachedAt)
	c.StartedAt = cloneTime(j.StartedAt)
	c.DoneAt = cloneTime(j.DoneAt)
	if j.Payment != nil {
		p := *j.Payment
		c.Payment = &p
	}
	c.ProviderReview = j.ProviderReview.clone()
	c.SeekerReview = j.SeekerReview.clone()
	return &c
}

// ForViewer hides OTP codes from anyone but the assigned seeker, who reads them out
// to the provider.
func (j *Job) ForViewer(userID string) *Job {
	c := j.Clone()
	if c.IsAssignedTo(userID) {
		return c
	}
	if c.StartOTP != nil {
		c.StartOTP.Code = ""
	}
	if c.DoneOTP != nil {
		c.DoneOTP.Code = ""
	}
	return c
}

func (o *OTP) clone() *OTP {
	if o == nil {
		return nil
	}
	c := *o
	c.VerifiedAt = cloneTime(o.VerifiedAt)
	return &c
}

func (r *ReviewMark) clone() *ReviewMark {
	if r == nil {
		return nil
	}
	c := *r
	c.ReviewID = cloneString(r.ReviewID)
	c.RatedAt = cloneTime(r.RatedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
