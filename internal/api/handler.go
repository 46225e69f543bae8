package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/github-social-relay/internal/aggregator"
	"github.com/kurihiro0119/github-social-relay/internal/domain"
	apperrors "github.com/kurihiro0119/github-social-relay/internal/errors"
	"github.com/kurihiro0119/github-social-relay/internal/metrics"
	"github.com/kurihiro0119/github-social-relay/internal/webhook"
)

// EventStore is the day-bucket store behind the webhook and stats endpoints
type EventStore interface {
	Save(eventType domain.EventType, payload []byte, deliveryID string) (*domain.Event, error)
	Stats(date string) *domain.DayStats
	Today() string
}

// PostWriter drafts a single-event post.
type PostWriter interface {
	EventPost(ctx context.Context, event domain.Event) string
}

// Poster publishes post text.
type Poster interface {
	Publish(ctx context.Context, date, content string, events []domain.Event) error
}

// Deps lists the collaborators of a Handler. Aggregator, Metrics, Writer and
// Poster are optional; immediate posting needs both Writer and Poster.
type Deps struct {
	Verifier       *webhook.Verifier
	Events         EventStore
	Aggregator     aggregator.Aggregator
	Metrics        *metrics.Collector
	Logger         logrus.FieldLogger
	DailyPostTime  string
	PostingMethod  string
	ReviewRequired bool

	ImmediatePost bool
	Writer        PostWriter
	Poster        Poster
	// BaseContext bounds background posts; cancelling it aborts them.
	BaseContext context.Context
}

// Handler handles API requests
type Handler struct {
	deps Deps
	wg   sync.WaitGroup
}

// NewHandler creates a new API handler
func NewHandler(deps Deps) *Handler {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	return &Handler{
		deps: deps,
	}
}

// Webhook receives a GitHub delivery
// POST /webhook
func (h *Handler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondWebhookError(c, apperrors.NewBadRequestError("Unable to read body", err))
		return
	}

	eventType := domain.EventType(c.GetHeader(webhook.EventHeader))
	deliveryID := c.GetHeader(webhook.DeliveryHeader)
	log := h.deps.Logger.WithFields(logrus.Fields{"event": eventType, "delivery": deliveryID})

	if !h.deps.Verifier.Verify(body, c.GetHeader(webhook.SignatureHeader)) {
		log.Warn("Invalid webhook signature")
		h.deps.Metrics.WebhookEvent(string(eventType), "rejected")
		respondWebhookError(c, apperrors.NewForbiddenError("Invalid signature"))
		return
	}

	if !eventType.IsSupported() {
		log.Info("Ignoring unsupported event")
		h.deps.Metrics.WebhookEvent(string(eventType), "ignored")
		c.JSON(http.StatusOK, gin.H{"status": "Event not handled"})
		return
	}

	if !json.Valid(body) {
		log.Warn("Webhook payload is not valid JSON")
		h.deps.Metrics.WebhookEvent(string(eventType), "invalid")
		respondWebhookError(c, apperrors.NewBadRequestError("Invalid JSON payload", nil))
		return
	}

	event, err := h.deps.Events.Save(eventType, body, deliveryID)
	if err != nil {
		log.WithError(err).Error("Error saving event")
		h.deps.Metrics.WebhookEvent(string(eventType), "error")
		respondWebhookError(c, apperrors.NewInternalError("Internal server error", err))
		return
	}

	log.WithField("summary", event.Summary).Info("Event saved for daily summary")
	h.deps.Metrics.WebhookEvent(string(eventType), "stored")

	if h.deps.ImmediatePost && h.deps.Writer != nil && h.deps.Poster != nil {
		h.wg.Add(1)
		go h.postImmediately(*event)
	}

	c.JSON(http.StatusOK, gin.H{"status": "Event saved for daily summary"})
}

func (h *Handler) postImmediately(event domain.Event) {
	defer h.wg.Done()
	log := h.deps.Logger.WithFields(logrus.Fields{"event": event.Type, "event_id": event.ID})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Immediate post panicked")
		}
	}()

	ctx := h.deps.BaseContext
	content := h.deps.Writer.EventPost(ctx, event)
	if err := h.deps.Poster.Publish(ctx, "", content, []domain.Event{event}); err != nil {
		log.WithError(err).Warn("Immediate post failed")
		return
	}
	log.Info("Immediate post published")
}

// Wait blocks until background posts started by Webhook have finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"supported_events": domain.SupportedEventTypes(),
		"daily_post_time":  h.deps.DailyPostTime,
		"posting_method":   h.deps.PostingMethod,
		"review_required":  h.deps.ReviewRequired,
		"immediate_post":   h.deps.ImmediatePost,
	})
}

// GetStats returns the pending event counts of one day
// GET /stats?date=YYYY-MM-DD
func (h *Handler) GetStats(c *gin.Context) {
	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			respondError(c, apperrors.NewBadRequestError("date must be YYYY-MM-DD", err))
			return
		}
	}

	c.JSON(http.StatusOK, h.deps.Events.Stats(date))
}

// GetRangeStats returns pending and posted event counts over a date range
// GET /api/v1/stats/range?start=&end=&granularity=
func (h *Handler) GetRangeStats(c *gin.Context) {
	if h.deps.Aggregator == nil {
		respondError(c, apperrors.NewNotFoundError("range statistics"))
		return
	}

	timeRange, err := parseTimeRange(c, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}

	stats, err := h.deps.Aggregator.Aggregate(c.Request.Context(), timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stats,
	})
}

// parseTimeRange parses time range from query parameters
func parseTimeRange(c *gin.Context, now time.Time) (domain.TimeRange, error) {
	// Default to last 7 days
	start := now.AddDate(0, 0, -7)
	end := now

	if s := c.Query("start"); s != "" {
		t, err := time.Parse(domain.DateLayout, s)
		if err != nil {
			return domain.TimeRange{}, apperrors.NewBadRequestError("start must be YYYY-MM-DD", err)
		}
		start = t
	}
	if s := c.Query("end"); s != "" {
		t, err := time.Parse(domain.DateLayout, s)
		if err != nil {
			return domain.TimeRange{}, apperrors.NewBadRequestError("end must be YYYY-MM-DD", err)
		}
		end = t
	}

	// Validate granularity
	granularity := c.DefaultQuery("granularity", "day")
	if granularity != "day" && granularity != "week" && granularity != "month" {
		granularity = "day"
	}

	return domain.TimeRange{
		Start:       start,
		End:         end,
		Granularity: granularity,
	}, nil
}

// respondWebhookError answers a delivery with a flat {"error": message} body,
// which is what GitHub shows in the delivery log.
func respondWebhookError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Message})
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	c.JSON(apperrors.HTTPStatus(err), gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
