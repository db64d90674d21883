package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bharatranastudy/outbreak-alerts/internal/models"
)

type idspResponse struct {
	Alerts []idspAlert `json:"alerts"`
}

// IDSP reports district-level data under its own field names.
type idspAlert struct {
	Disease            string   `json:"disease"`
	District           string   `json:"district"`
	CaseCount          int      `json:"case_count"`
	RiskLevel          string   `json:"risk_level"`
	Message            string   `json:"message"`
	PreventionMeasures []string `json:"prevention_measures"`
	Timestamp          string   `json:"timestamp"`
}

type IDSPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewIDSPClient(baseURL, apiKey string, timeout time.Duration) *IDSPClient {
	return &IDSPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *IDSPClient) Name() string {
	return "idsp"
}

func (c *IDSPClient) Fetch(ctx context.Context, location string) ([]models.Alert, error) {
	endpoint := c.baseURL + "/outbreaks"
	if location != "" {
		endpoint += "?location=" + url.QueryEscape(location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data idspResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	alerts := make([]models.Alert, 0, len(data.Alerts))
	for _, a := range data.Alerts {
		alerts = append(alerts, models.Alert{
			Disease:     orUnknown(a.Disease),
			Location:    orUnknown(a.District),
			Cases:       max(a.CaseCount, 0),
			Severity:    normalizeSeverity(a.RiskLevel),
			Message:     a.Message,
			Precautions: a.PreventionMeasures,
			Source:      "IDSP",
			CreatedAt:   parseTimestamp(a.Timestamp),
		})
	}

	return alerts, nil
}
