package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const gupshupAPIBase = "https://api.gupshup.io/sm/api/v1"

type GupshupProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewGupshupProvider(apiKey string) *GupshupProvider {
	return &GupshupProvider{
		apiKey:  apiKey,
		baseURL: gupshupAPIBase,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (p *GupshupProvider) Name() string {
	return "gupshup"
}

func (p *GupshupProvider) Send(ctx context.Context, recipient, message string) error {
	if p.apiKey == "" {
		return ErrMissingCredentials
	}

	form := url.Values{}
	form.Set("destination", recipient)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/msg", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}
	return nil
}
