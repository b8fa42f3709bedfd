package session

import (
	"time"

	"honeypot-lab/internal/domain/models"
)

// EventType identifies a store change
type EventType string

const (
	EventUpdated EventType = "session.updated"
	EventEvicted EventType = "session.evicted"
)

// Event describes one change to a session. Added holds only the indicators
// that were new to the session in this change.
type Event struct {
	Type    EventType           `json:"type"`
	Session models.Session      `json:"session"`
	Added   models.IndicatorSet `json:"added"`
	At      time.Time           `json:"at"`
}

// HasNewIntel reports whether the change added any indicator
func (e Event) HasNewIntel() bool {
	return !e.Added.IsEmpty()
}
