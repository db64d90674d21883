// Package sources holds one client per upstream outbreak authority. Each
// client owns the mapping from that authority's schema to the canonical
// Alert shape; missing fields get documented defaults so downstream code
// never sees partially-populated records.
package sources

import (
	"context"
	"strings"
	"time"

	"github.com/bharatranastudy/outbreak-alerts/internal/models"
)

type Client interface {
	Name() string
	Fetch(ctx context.Context, location string) ([]models.Alert, error)
}

func normalizeSeverity(s string) models.Severity {
	switch sev := models.Severity(strings.ToLower(s)); sev {
	case models.SeverityLow, models.SeverityModerate, models.SeverityHigh, models.SeverityCritical:
		return sev
	default:
		return models.SeverityModerate
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}
