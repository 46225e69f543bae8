package domain

import (
	"encoding/json"
	"time"
)

// EventType represents the type of GitHub webhook event
type EventType string

const (
	EventTypePush         EventType = "push"
	EventTypeRelease      EventType = "release"
	EventTypeRepository   EventType = "repository"
	EventTypeOrganization EventType = "organization"
)

// SupportedEventTypes returns the webhook events that are buffered for posting.
func SupportedEventTypes() []EventType {
	return []EventType{
		EventTypePush,
		EventTypeRelease,
		EventTypeRepository,
		EventTypeOrganization,
	}
}

// IsSupported checks if the event type is one we buffer
func (t EventType) IsSupported() bool {
	for _, s := range SupportedEventTypes() {
		if t == s {
			return true
		}
	}
	return false
}

// Event represents a single verified webhook delivery stored in a day bucket
type Event struct {
	ID         string          `json:"id,omitempty"`
	Type       EventType       `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	Summary    string          `json:"summary"`
	DeliveryID string          `json:"delivery_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// DateLayout is the key format of a day bucket.
const DateLayout = "2006-01-02"

// DateKey formats t as a day-bucket key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}
