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

type mofhwResponse struct {
	Outbreaks []mofhwOutbreak `json:"outbreaks"`
}

type mofhwOutbreak struct {
	DiseaseName  string   `json:"disease_name"`
	Location     string   `json:"location"`
	CasesCount   int      `json:"cases_count"`
	Severity     string   `json:"severity"`
	AlertMessage string   `json:"alert_message"`
	Precautions  []string `json:"precautions"`
	CreatedAt    string   `json:"created_at"`
}

type MOFHWClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewMOFHWClient(baseURL, apiKey string, timeout time.Duration) *MOFHWClient {
	return &MOFHWClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *MOFHWClient) Name() string {
	return "mofhw"
}

func (c *MOFHWClient) Fetch(ctx context.Context, location string) ([]models.Alert, error) {
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

	var data mofhwResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	alerts := make([]models.Alert, 0, len(data.Outbreaks))
	for _, o := range data.Outbreaks {
		alerts = append(alerts, models.Alert{
			Disease:     orUnknown(o.DiseaseName),
			Location:    orUnknown(o.Location),
			Cases:       max(o.CasesCount, 0),
			Severity:    normalizeSeverity(o.Severity),
			Message:     o.AlertMessage,
			Precautions: o.Precautions,
			Source:      "MOFHW",
			CreatedAt:   parseTimestamp(o.CreatedAt),
		})
	}

	return alerts, nil
}
