package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/geo"
)

type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
	BidCancelled BidStatus = "cancelled"
)

type Bid struct {
	ID        string          `json:"id"`
	JobID     string          `json:"job_id"`
	SeekerID  string          `json:"seeker_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    BidStatus       `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type LocationStatus string

const (
	LocationActive LocationStatus = "active"
	LocationClosed LocationStatus = "closed"
)

// ActiveJobLocation is the live-location record for an assigned job.
type ActiveJobLocation struct {
	JobID            string         `json:"job_id"`
	SeekerID         string         `json:"seeker_id"`
	ProviderID       string         `json:"provider_id"`
	SeekerLocation   *geo.Point     `json:"seeker_location"`
	ProviderLocation geo.Point      `json:"provider_location"`
	Status           LocationStatus `json:"status"`
	LastUpdated      time.Time      `json:"last_updated"`
	CreatedAt        time.Time      `json:"created_at"`
}

type TxType string

const (
	TxCredit TxType = "credit"
	TxDebit  TxType = "debit"
)

const (
	ReasonInitialCredit = "Initial credit"
	ReasonJobLead       = "For Job Lead"
	ReasonLeadRefund    = "Refund for cancelled job"
	ReasonAdminCredit   = "Wallet recharge"
)

type WalletTransaction struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Type      TxType          `json:"type"`
	Reason    string          `json:"reason"`
	JobID     *string         `json:"job_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Review struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	ReviewerID   string    `json:"reviewer_id"`
	RevieweeID   string    `json:"reviewee_id"`
	ReviewerRole Role      `json:"reviewer_role"`
	Rating       int       `json:"rating"`
	Text         string    `json:"review_text"`
	CreatedAt    time.Time `json:"created_at"`
}

type SeekerStatus string

const (
	SeekerFree    SeekerStatus = "free"
	SeekerBusy    SeekerStatus = "busy"
	SeekerOffline SeekerStatus = "offline"
)

type UserStats struct {
	UserID        string          `json:"user_id"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`

	TotalJobsPosted    int             `json:"total_jobs_posted"`
	TotalJobsDone      int             `json:"total_jobs_done"`
	TotalJobsCancelled int             `json:"total_jobs_cancelled"`
	TotalSpent         decimal.Decimal `json:"total_spent"`
	TotalEarned        decimal.Decimal `json:"total_earned"`
	TotalHoursWorked   int             `json:"total_hours_worked"`

	RatingSumAsSeeker     int `json:"-"`
	RatingCountAsSeeker   int `json:"total_ratings_as_seeker"`
	RatingSumAsProvider   int `json:"-"`
	RatingCountAsProvider int `json:"total_ratings_as_provider"`

	CurrentStatus  SeekerStatus `json:"current_status"`
	CurrentJobID   *string      `json:"current_job_id,omitempty"`
	SeekerCityID   string       `json:"seeker_city_id,omitempty"`
	SeekerCategory string       `json:"seeker_category_id,omitempty"`
	LastLocation   *geo.Point   `json:"last_location,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"-"`
}

// AvgRatingAsSeeker is the arithmetic mean of ratings received as a seeker.
func (s *UserStats) AvgRatingAsSeeker() float64 {
	return mean(s.RatingSumAsSeeker, s.RatingCountAsSeeker)
}

func (s *UserStats) AvgRatingAsProvider() float64 {
	return mean(s.RatingSumAsProvider, s.RatingCountAsProvider)
}

func mean(sum, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func (s *UserStats) Clone() *UserStats {
	if s == nil {
		return nil
	}
	c := *s
	c.CurrentJobID = cloneString(s.CurrentJobID)
	if s.LastLocation != nil {
		p := *s.LastLocation
		c.LastLocation = &p
	}
	return &c
}

type User struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Mobile string   `json:"mobile"`
	Roles  []string `json:"roles"`
}

type Address struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	AddressLine1 string    `json:"address_line1"`
	AddressLine2 string    `json:"address_line2,omitempty"`
	Apartment    string    `json:"apartment,omitempty"`
	Landmark     string    `json:"landmark,omitempty"`
	Label        string    `json:"label,omitempty"`
	Type         string    `json:"type,omitempty"`
	CityID       string    `json:"city_id"`
	Location     geo.Point `json:"location"`
}

// Snapshot copies the address by value for embedding in a job.
func (a *Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		AddressID:    a.ID,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		Apartment:    a.Apartment,
		Landmark:     a.Landmark,
		Label:        a.Label,
		Type:         a.Type,
		CityID:       a.CityID,
		Location:     a.Location,
	}
}

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
	IsActive bool   `json:"is_active"`
}

type City struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type Rate struct {
	ID            string          `json:"id"`
	CityID        string          `json:"city_id"`
	CategoryID    string          `json:"category_id"`
	MinHourlyRate decimal.Decimal `json:"min_hourly_rate"`
	MaxHourlyRate decimal.Decimal `json:"max_hourly_rate"`
}
