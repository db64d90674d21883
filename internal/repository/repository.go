package repository

import (
	"context"
	"time"

	"github.com/bharatranastudy/outbreak-alerts/internal/models"
)

type Filter struct {
	Since        *time.Time
	Location     string // case-insensitive substring match
	VerifiedOnly bool
	Limit        int
}

// Stats aggregates verified alerts over a reporting window.
type Stats struct {
	PeriodDays  int            `json:"period_days"`
	Total       int            `json:"total_outbreaks"`
	ByDisease   map[string]int `json:"disease_distribution"`
	ByLocation  map[string]int `json:"location_distribution"`
	BySeverity  map[string]int `json:"severity_distribution"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type AlertRepository interface {
	Add(ctx context.Context, a *models.Alert) error
	MarkVerified(ctx context.Context, id string) error
	ListAlerts(ctx context.Context, opts Filter) ([]models.Alert, error)
	Stats(ctx context.Context, since time.Time) (*Stats, error)
}

type SubscriptionRepository interface {
	AddSubscription(ctx context.Context, s *models.Subscription) error
	ListRecipients(ctx context.Context, location string) ([]string, error)
}
