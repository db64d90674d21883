package models

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Score maps a severity level to its rank. Unrecognized levels rank as
// moderate so malformed upstream data never sinks below real low alerts.
func (s Severity) Score() int {
	switch Severity(strings.ToLower(string(s))) {
	case SeverityLow:
		return 1
	case SeverityModerate:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 2
	}
}

type Alert struct {
	ID          string    `json:"id,omitempty"`
	Disease     string    `json:"disease"`
	Location    string    `json:"location"`
	Cases       int       `json:"cases"`
	Severity    Severity  `json:"severity_level"`
	Message     string    `json:"alert_message"`
	Precautions []string  `json:"precautions"`
	Source      string    `json:"source"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
}

type AlertKey struct {
	Disease  string
	Location string
}

// Key is the identity used for duplicate collapse. Disease and location are
// compared exactly as received; case-normalization is left to upstream data.
func (a *Alert) Key() AlertKey {
	return AlertKey{Disease: a.Disease, Location: a.Location}
}
