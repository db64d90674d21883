// Package aggregator merges outbreak alerts from every configured authority
// with the locally verified alert record, then collapses duplicates and
// ranks the result by severity.
package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bharatranastudy/outbreak-alerts/internal/models"
	"github.com/bharatranastudy/outbreak-alerts/internal/repository"
	"github.com/bharatranastudy/outbreak-alerts/internal/sources"
)

type Aggregator struct {
	clients []sources.Client
	repo    repository.AlertRepository
	window  time.Duration
}

// New configures the aggregator. Client order is trust order: when two
// sources report the same (disease, location), the earlier client's record
// survives deduplication.
func New(clients []sources.Client, repo repository.AlertRepository, window time.Duration) *Aggregator {
	return &Aggregator{
		clients: clients,
		repo:    repo,
		window:  window,
	}
}

// Collect fetches from every source concurrently plus the local store, and
// concatenates the contributions in trust order. A failing or slow source
// degrades only its own slot; its error is logged and it contributes
// nothing. The result is not deduplicated.
func (a *Aggregator) Collect(ctx context.Context, location string) []models.Alert {
	// One slot per source plus one for the local store, so concurrent
	// completion order never changes the output order.
	slots := make([][]models.Alert, len(a.clients)+1)

	var wg sync.WaitGroup
	for i, client := range a.clients {
		wg.Add(1)
		go func(i int, client sources.Client) {
			defer wg.Done()

			alerts, err := client.Fetch(ctx, location)
			if err != nil {
				slog.Warn("source fetch failed", "source", client.Name(), "error", err)
				return
			}
			slots[i] = alerts
		}(i, client)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		since := time.Now().Add(-a.window)
		alerts, err := a.repo.ListAlerts(ctx, repository.Filter{
			Since:        &since,
			Location:     location,
			VerifiedOnly: true,
		})
		if err != nil {
			slog.Warn("local alert query failed", "error", err)
			return
		}
		slots[len(a.clients)] = alerts
	}()

	wg.Wait()

	var merged []models.Alert
	for _, slot := range slots {
		merged = append(merged, slot...)
	}
	return merged
}
