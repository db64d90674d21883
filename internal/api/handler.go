package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bharatranastudy/outbreak-alerts/internal/aggregator"
	"github.com/bharatranastudy/outbreak-alerts/internal/models"
	"github.com/bharatranastudy/outbreak-alerts/internal/queue"
	"github.com/bharatranastudy/outbreak-alerts/internal/repository"
	"github.com/bharatranastudy/outbreak-alerts/internal/signing"
)

// SignatureHeader carries the inbound alert signature as "sha256=<hex>".
const SignatureHeader = "X-Signature"

type Store interface {
	repository.AlertRepository
	repository.SubscriptionRepository
}

type Handler struct {
	store  Store
	agg    *aggregator.Aggregator
	signer *signing.Signer
	queue  queue.Queue
	window time.Duration
}

func NewHandler(store Store, agg *aggregator.Aggregator, signer *signing.Signer, q queue.Queue, window time.Duration) *Handler {
	return &Handler{
		store:  store,
		agg:    agg,
		signer: signer,
		queue:  q,
		window: window,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/outbreak-alert", h.receiveAlert)
	r.GET("/api/outbreaks", h.getOutbreaks)
	r.GET("/api/outbreaks/stats", h.getStats)
	r.POST("/api/subscriptions", h.addSubscription)
	r.GET("/health", h.health)
}

type alertRequest struct {
	DiseaseName   string   `json:"disease_name"`
	Location      string   `json:"location"`
	CasesCount    int      `json:"cases_count"`
	SeverityLevel string   `json:"severity_level"`
	AlertMessage  string   `json:"alert_message"`
	Precautions   []string `json:"precautions"`
	Source        string   `json:"source"`
}

// receiveAlert handles authenticated outbreak alerts from partner systems.
// The signature is verified over the exact request body before anything is
// persisted; any failure along the way rejects the request.
func (h *Handler) receiveAlert(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid HMAC signature"})
		return
	}

	if !h.signer.Verify(body, c.GetHeader(SignatureHeader)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid HMAC signature"})
		return
	}

	var req alertRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed alert payload"})
		return
	}

	alert := &models.Alert{
		ID:          uuid.NewString(),
		Disease:     withDefault(req.DiseaseName, "Unknown"),
		Location:    withDefault(req.Location, "Unknown"),
		Cases:       max(req.CasesCount, 0),
		Severity:    normalizeSeverity(req.SeverityLevel),
		Message:     req.AlertMessage,
		Precautions: req.Precautions,
		Source:      withDefault(req.Source, "Government"),
		Verified:    true,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.store.Add(c.Request.Context(), alert); err != nil {
		slog.Error("persisting alert failed", "disease", alert.Disease, "location", alert.Location, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist alert"})
		return
	}

	// Fan-out happens after the response; delivery is the queue's problem.
	go h.fanOut(alert)

	c.JSON(http.StatusOK, gin.H{
		"status":    "alert_processed",
		"timestamp": time.Now().UTC(),
	})
}

// fanOut enqueues one notification job per subscriber in the alert's
// location. Enqueue failures are logged, not surfaced: the alert itself is
// already persisted and visible.
func (h *Handler) fanOut(alert *models.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recipients, err := h.store.ListRecipients(ctx, alert.Location)
	if err != nil {
		slog.Error("listing recipients failed", "location", alert.Location, "error", err)
		return
	}

	message := formatAlertMessage(alert)
	for _, recipient := range recipients {
		job := &models.NotificationJob{
			ID:         uuid.NewString(),
			Recipient:  recipient,
			Message:    message,
			Status:     models.JobStatusQueued,
			EnqueuedAt: time.Now().UTC(),
		}
		if err := h.queue.Enqueue(ctx, job); err != nil {
			slog.Error("enqueue failed", "job", job.ID, "recipient", recipient, "error", err)
		}
	}

	slog.Info("alert fan-out complete", "disease", alert.Disease, "location", alert.Location,
		"recipients", len(recipients))
}

func (h *Handler) getOutbreaks(c *gin.Context) {
	location := c.Query("location")

	merged := h.agg.Collect(c.Request.Context(), location)
	ranked := aggregator.DedupeAndRank(merged)

	c.JSON(http.StatusOK, gin.H{"outbreaks": ranked})
}

func (h *Handler) getStats(c *gin.Context) {
	days := int(h.window.Hours() / 24)
	if d := c.Query("days"); d != "" {
		if n, err := strconv.Atoi(d); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}

	stats, err := h.store.Stats(c.Request.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute statistics"})
		return
	}
	stats.PeriodDays = days

	c.JSON(http.StatusOK, stats)
}

type subscriptionRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Location  string `json:"location" binding:"required"`
}

func (h *Handler) addSubscription(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient and location are required"})
		return
	}

	sub := &models.Subscription{
		Recipient: req.Recipient,
		Location:  req.Location,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.AddSubscription(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "subscribed"})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func withDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func normalizeSeverity(s string) models.Severity {
	switch sev := models.Severity(strings.ToLower(s)); sev {
	case models.SeverityLow, models.SeverityModerate, models.SeverityHigh, models.SeverityCritical:
		return sev
	default:
		return models.SeverityModerate
	}
}

func formatAlertMessage(a *models.Alert) string {
	msg := fmt.Sprintf("Outbreak alert: %s in %s (%d cases, severity %s).",
		a.Disease, a.Location, a.Cases, a.Severity)
	if a.Message != "" {
		msg += " " + a.Message
	}
	if len(a.Precautions) > 0 {
		msg += " Precautions: " + strings.Join(a.Precautions, "; ")
	}
	return msg
}
