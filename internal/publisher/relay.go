package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
)

const relayPreviewLimit = 10

// Relay forwards generated posts to a downstream webhook instead of LinkedIn.
type Relay struct {
	url    string
	client *http.Client
	now    func() time.Time
	logger logrus.FieldLogger
}

var _ Sender = (*Relay)(nil)

// NewRelay creates a relay sender for url.
func NewRelay(url string, logger logrus.FieldLogger) *Relay {
	return &Relay{
		url:    url,
		client: &http.Client{Timeout: postTimeout},
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Name identifies the delivery method.
func (r *Relay) Name() string { return "relay" }

type relayPayload struct {
	EventType     string          `json:"event_type"`
	Content       string          `json:"content"`
	Timestamp     time.Time       `json:"timestamp"`
	Stats         relayStats      `json:"stats"`
	EventsSummary []relayEventRef `json:"events_summary"`
}

type relayStats struct {
	TotalEvents int      `json:"total_events"`
	EventTypes  []string `json:"event_types"`
}

type relayEventRef struct {
	Type      domain.EventType `json:"type"`
	Summary   string           `json:"summary"`
	Timestamp time.Time        `json:"timestamp"`
}

// Send posts the content with aggregate stats and a preview of the first events.
func (r *Relay) Send(ctx context.Context, content string, events []domain.Event) error {
	payload := relayPayload{
		EventType: "daily_summary",
		Content:   content,
		Timestamp: r.now(),
		Stats: relayStats{
			TotalEvents: len(events),
			EventTypes:  domain.DistinctTypes(events),
		},
		EventsSummary: []relayEventRef{},
	}
	if payload.Stats.EventTypes == nil {
		payload.Stats.EventTypes = []string{}
	}
	for i, e := range events {
		if i == relayPreviewLimit {
			break
		}
		payload.EventsSummary = append(payload.EventsSummary, relayEventRef{Type: e.Type, Summary: e.Summary, Timestamp: e.Timestamp})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	r.logger.WithField("url", r.url).Info("Sending to relay")
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.WithError(err).Error("Failed to send to relay")
		return fmt.Errorf("relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		r.logger.WithField("status", resp.StatusCode).Error("Relay rejected post")
		return fmt.Errorf("relay: unexpected status %s", resp.Status)
	}
	r.logger.WithField("status", resp.StatusCode).Info("Successfully sent to relay")
	return nil
}
