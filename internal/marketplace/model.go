package marketplace

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/models"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	UserID string
	Roles  []string
}

func (a Actor) Has(r models.Role) bool {
	return slices.Contains(a.Roles, string(r))
}

// CreateJobInput is what a provider submits to post a job
type CreateJobInput struct {
	CategoryID     string          `json:"category_id" validate:"required"`
	SubCategoryIDs []string        `json:"sub_category_ids"`
	Title          string          `json:"title" validate:"required,max=200"`
	Description    string          `json:"description" validate:"max=2000"`
	AddressID      string          `json:"address_id" validate:"required"`
	HourlyRate     decimal.Decimal `json:"hourly_rate"`
}

// BidView is a bid as the job owner sees it when choosing a seeker
type BidView struct {
	models.Bid
	SeekerName   string     `json:"seeker_name"`
	CategoryName string     `json:"category_name"`
	Location     *geo.Point `json:"location,omitempty"`
	Rating       float64    `json:"rating"`
	TotalRatings int        `json:"total_ratings"`
	ETAMinutes   int        `json:"eta_minutes"`
}

// RatingSummary aggregates the ratings a user received in one role
type RatingSummary struct {
	Average      float64 `json:"average_rating"`
	TotalReviews int     `json:"total_reviews"`
}

// ReviewStats is the public rating profile of a user
type ReviewStats struct {
	UserID       string          `json:"user_id"`
	AsSeeker     RatingSummary   `json:"as_seeker"`
	AsProvider   RatingSummary   `json:"as_provider"`
	RatingCounts map[int]int     `json:"rating_counts"`
	Recent       []models.Review `json:"recent_reviews"`
}
