package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bharatranastudy/outbreak-alerts/internal/aggregator"
	"github.com/bharatranastudy/outbreak-alerts/internal/models"
	"github.com/bharatranastudy/outbreak-alerts/internal/repository"
	"github.com/bharatranastudy/outbreak-alerts/internal/signing"
)

// mockStore implements the Store interface for testing.
type mockStore struct {
	mu         sync.Mutex
	alerts     []models.Alert
	subs       []models.Subscription
	recipients map[string][]string
	addErr     error
}

func (m *mockStore) Add(ctx context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *mockStore) MarkVerified(ctx context.Context, id string) error { return nil }

func (m *mockStore) ListAlerts(ctx context.Context, opts repository.Filter) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []models.Alert
	for _, a := range m.alerts {
		if opts.VerifiedOnly && !a.Verified {
			continue
		}
		if opts.Location != "" && !strings.Contains(strings.ToLower(a.Location), strings.ToLower(opts.Location)) {
			continue
		}
		results = append(results, a)
	}
	return results, nil
}

func (m *mockStore) Stats(ctx context.Context, since time.Time) (*repository.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &repository.Stats{
		ByDisease:   map[string]int{},
		ByLocation:  map[string]int{},
		BySeverity:  map[string]int{},
		GeneratedAt: time.Now(),
	}
	for _, a := range m.alerts {
		if a.Verified {
			stats.Total++
			stats.ByDisease[a.Disease]++
		}
	}
	return stats, nil
}

func (m *mockStore) AddSubscription(ctx context.Context, s *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, *s)
	return nil
}

func (m *mockStore) ListRecipients(ctx context.Context, location string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recipients[strings.ToLower(location)], nil
}

func (m *mockStore) storedAlerts() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Alert(nil), m.alerts...)
}

type mockQueue struct {
	mu   sync.Mutex
	jobs []models.NotificationJob
}

func (q *mockQueue) Enqueue(ctx context.Context, job *models.NotificationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, *job)
	return nil
}

func (q *mockQueue) Dequeue(ctx context.Context, lease time.Duration) (*models.NotificationJob, error) {
	return nil, errors.New("not implemented")
}
func (q *mockQueue) Complete(ctx context.Context, job *models.NotificationJob) error { return nil }
func (q *mockQueue) Retry(ctx context.Context, job *models.NotificationJob, delay time.Duration) error {
	return nil
}
func (q *mockQueue) DeadLetter(ctx context.Context, job *models.NotificationJob) error { return nil }
func (q *mockQueue) PromoteDelayed(ctx context.Context) (int, error)                   { return 0, nil }
func (q *mockQueue) ReapExpired(ctx context.Context) (int, error)                      { return 0, nil }

func (q *mockQueue) enqueued() []models.NotificationJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.NotificationJob(nil), q.jobs...)
}

const testSecret = "test-secret"

func setupTest(store *mockStore) (*gin.Engine, *mockQueue) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	q := &mockQueue{}
	signer := signing.New(testSecret)
	agg := aggregator.New(nil, store, 30*24*time.Hour)
	handler := NewHandler(store, agg, signer, q, 30*24*time.Hour)
	handler.RegisterRoutes(router)

	return router, q
}

func signedRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	sig, err := signing.New(testSecret).Sign(body)
	if err != nil {
		t.Fatalf("signing request body: %v", err)
	}
	req, _ := http.NewRequest("POST", "/api/outbreak-alert", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, sig)
	return req
}

func TestReceiveAlert_ValidSignature(t *testing.T) {
	store := &mockStore{recipients: map[string][]string{
		"pune": {"user-1", "user-2"},
	}}
	router, q := setupTest(store)

	body := []byte(`{"disease_name":"Dengue","location":"Pune","cases_count":42,"severity_level":"high","alert_message":"Rising cases","precautions":["use repellent"],"source":"MOFHW"}`)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, body))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "alert_processed" {
		t.Errorf("expected status alert_processed, got %v", resp["status"])
	}

	alerts := store.storedAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 persisted alert, got %d", len(alerts))
	}
	if !alerts[0].Verified {
		t.Error("persisted alert must be verified")
	}
	if alerts[0].Disease != "Dengue" || alerts[0].Severity != models.SeverityHigh {
		t.Errorf("unexpected alert %+v", alerts[0])
	}

	// Fan-out runs after the response.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(q.enqueued()) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	jobs := q.enqueued()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 enqueued jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		if job.Status != models.JobStatusQueued {
			t.Errorf("expected queued status, got %s", job.Status)
		}
		if !strings.Contains(job.Message, "Dengue") {
			t.Errorf("job message missing disease: %q", job.Message)
		}
	}
}

func TestReceiveAlert_TamperedBodyRejected(t *testing.T) {
	store := &mockStore{}
	router, q := setupTest(store)

	original := []byte(`{"disease_name":"Dengue","location":"Pune","cases_count":42,"severity_level":"high"}`)
	sig, err := signing.New(testSecret).Sign(original)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	tampered := []byte(`{"disease_name":"Dengue","location":"Pune","cases_count":9000,"severity_level":"high"}`)
	req, _ := http.NewRequest("POST", "/api/outbreak-alert", bytes.NewReader(tampered))
	req.Header.Set(SignatureHeader, sig)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if len(store.storedAlerts()) != 0 {
		t.Error("rejected alert must not be persisted")
	}
	if len(q.enqueued()) != 0 {
		t.Error("rejected alert must not trigger fan-out")
	}
}

func TestReceiveAlert_MissingSignatureRejected(t *testing.T) {
	store := &mockStore{}
	router, _ := setupTest(store)

	req, _ := http.NewRequest("POST", "/api/outbreak-alert",
		strings.NewReader(`{"disease_name":"Dengue"}`))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestReceiveAlert_PersistenceFailure(t *testing.T) {
	store := &mockStore{addErr: errors.New("disk full")}
	router, q := setupTest(store)

	body := []byte(`{"disease_name":"Dengue","location":"Pune"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, body))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if len(q.enqueued()) != 0 {
		t.Error("failed persistence must not trigger fan-out")
	}
}

func TestReceiveAlert_DefaultsApplied(t *testing.T) {
	store := &mockStore{}
	router, _ := setupTest(store)

	body := []byte(`{"severity_level":"unheard-of"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, body))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	alerts := store.storedAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Disease != "Unknown" || a.Location != "Unknown" || a.Source != "Government" {
		t.Errorf("defaults not applied: %+v", a)
	}
	if a.Severity != models.SeverityModerate {
		t.Errorf("unknown severity should default to moderate, got %s", a.Severity)
	}
}

func TestGetOutbreaks_DedupedAndRanked(t *testing.T) {
	now := time.Now()
	store := &mockStore{alerts: []models.Alert{
		{Disease: "Dengue", Location: "Pune", Cases: 42, Severity: models.SeverityHigh, Verified: true, CreatedAt: now},
		{Disease: "Dengue", Location: "Pune", Cases: 50, Severity: models.SeverityHigh, Verified: true, CreatedAt: now},
		{Disease: "Cholera", Location: "Pune", Cases: 7, Severity: models.SeverityCritical, Verified: true, CreatedAt: now},
		{Disease: "Flu", Location: "Pune", Cases: 3, Severity: models.SeverityLow, Verified: false, CreatedAt: now},
	}}
	router, _ := setupTest(store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/outbreaks?location=Pune", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Outbreaks []models.Alert `json:"outbreaks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if len(resp.Outbreaks) != 2 {
		t.Fatalf("expected 2 outbreaks (deduped, verified only), got %d", len(resp.Outbreaks))
	}
	if resp.Outbreaks[0].Disease != "Cholera" {
		t.Errorf("expected critical alert first, got %s", resp.Outbreaks[0].Disease)
	}
	if resp.Outbreaks[1].Cases != 42 {
		t.Errorf("expected first-encountered duplicate to survive, got %d cases", resp.Outbreaks[1].Cases)
	}
}

func TestAddSubscription(t *testing.T) {
	store := &mockStore{}
	router, _ := setupTest(store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/subscriptions",
		strings.NewReader(`{"recipient":"user-1","location":"Pune"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if len(store.subs) != 1 {
		t.Errorf("expected 1 subscription, got %d", len(store.subs))
	}
}

func TestAddSubscription_MissingFields(t *testing.T) {
	store := &mockStore{}
	router, _ := setupTest(store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/subscriptions",
		strings.NewReader(`{"recipient":"user-1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetStats(t *testing.T) {
	now := time.Now()
	store := &mockStore{alerts: []models.Alert{
		{Disease: "Dengue", Location: "Pune", Severity: models.SeverityHigh, Verified: true, CreatedAt: now},
		{Disease: "Dengue", Location: "Delhi", Severity: models.SeverityLow, Verified: true, CreatedAt: now},
	}}
	router, _ := setupTest(store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/outbreaks/stats?days=7", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var stats repository.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("expected total 2, got %d", stats.Total)
	}
	if stats.PeriodDays != 7 {
		t.Errorf("expected period 7, got %d", stats.PeriodDays)
	}
}

func TestHealth(t *testing.T) {
	router, _ := setupTest(&mockStore{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
