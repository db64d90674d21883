package aggregator

import (
	"sort"

	"github.com/bharatranastudy/outbreak-alerts/internal/models"
)

// DedupeAndRank collapses the input to one alert per (disease, location)
// key, keeping the first occurrence in input order, then sorts by severity
// score descending with ties broken by most recent creation time. Alerts
// tied on both keep their input order.
func DedupeAndRank(alerts []models.Alert) []models.Alert {
	seen := make(map[models.AlertKey]struct{}, len(alerts))
	unique := make([]models.Alert, 0, len(alerts))

	for _, a := range alerts {
		key := a.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, a)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		si, sj := unique[i].Severity.Score(), unique[j].Severity.Score()
		if si != sj {
			return si > sj
		}
		return unique[i].CreatedAt.After(unique[j].CreatedAt)
	})

	return unique
}
