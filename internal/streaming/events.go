package streaming

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"honeypot-lab/internal/domain/models"
)

// EventType represents the type of honeypot event
type EventType string

const (
	EventTypeNewIntel         EventType = "new_intel"
	EventTypeSessionFinalized EventType = "session_finalized"
)

// IntelEvent announces one indicator a session has just surfaced
type IntelEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	SessionID string               `json:"session_id"`
	Kind      models.IndicatorKind `json:"kind"`
	Value     string               `json:"value"`

	ScamDetected bool                `json:"scam_detected"`
	ScamType     models.ScamCategory `json:"scam_type"`
	Confidence   float64             `json:"confidence"`
}

// NewIntelEvents creates one event per indicator in added, in reporting order
func NewIntelEvents(s models.Session, added models.IndicatorSet) []*IntelEvent {
	now := time.Now()
	var events []*IntelEvent
	for _, kind := range models.IndicatorKinds {
		for _, v := range added.Field(kind).Sorted() {
			events = append(events, &IntelEvent{
				ID:           uuid.New().String(),
				Type:         EventTypeNewIntel,
				Timestamp:    now,
				SessionID:    s.ID,
				Kind:         kind,
				Value:        v,
				ScamDetected: s.ScamDetected,
				ScamType:     models.ScamCategory(s.Category.String()),
				Confidence:   s.Confidence,
			})
		}
	}
	return events
}

// SessionFinalizedEvent announces a session leaving memory
type SessionFinalizedEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	SessionID    string                       `json:"session_id"`
	ScamDetected bool                         `json:"scam_detected"`
	ScamType     models.ScamCategory          `json:"scam_type"`
	Confidence   float64                      `json:"confidence"`
	TurnCount    int                          `json:"turn_count"`
	Metrics      models.EngagementMetrics     `json:"engagement_metrics"`
	Indicators   map[models.IndicatorKind]int `json:"indicators"`
	Notified     bool                         `json:"notified"`
}

// NewSessionFinalizedEvent creates a finalized event for s
func NewSessionFinalizedEvent(s models.Session, metrics models.EngagementMetrics) *SessionFinalizedEvent {
	return &SessionFinalizedEvent{
		ID:           uuid.New().String(),
		Type:         EventTypeSessionFinalized,
		Timestamp:    time.Now(),
		SessionID:    s.ID,
		ScamDetected: s.ScamDetected,
		ScamType:     models.ScamCategory(s.Category.String()),
		Confidence:   s.Confidence,
		TurnCount:    s.TurnCount,
		Metrics:      metrics,
		Indicators:   s.Intelligence.Counts(),
		Notified:     s.NotificationSent,
	}
}

// Subscription represents a consumer's filter preferences
type Subscription struct {
	// Filter by indicator kinds (empty = all)
	Kinds []models.IndicatorKind `json:"kinds,omitempty"`

	// Filter to a single session
	SessionID string `json:"session_id,omitempty"`

	// Include only indicators from flagged sessions
	ScamOnly bool `json:"scam_only,omitempty"`
}

// Matches checks if an event matches the subscription filters
func (s *Subscription) Matches(event *IntelEvent) bool {
	if s == nil {
		return true
	}
	if len(s.Kinds) > 0 && !slices.Contains(s.Kinds, event.Kind) {
		return false
	}
	if s.SessionID != "" && s.SessionID != event.SessionID {
		return false
	}
	if s.ScamOnly && !event.ScamDetected {
		return false
	}
	return true
}
