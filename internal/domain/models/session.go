package models

import "time"

// Session is the per-conversation intelligence record. It is owned by the
// session store; values handed out by the store are copies.
type Session struct {
	ID               string       `json:"sessionId"`
	ScamDetected     bool         `json:"scamDetected"`
	Category         ScamCategory `json:"scamType,omitempty"`
	Confidence       float64      `json:"confidenceLevel"`
	Intelligence     IndicatorSet `json:"extractedIntelligence"`
	Signals          StringSet    `json:"signals"`
	Tactics          StringSet    `json:"tactics"`
	RedFlags         StringSet    `json:"redFlags"`
	TurnCount        int          `json:"turnCount"`
	HistoryMessages  int          `json:"historyMessages"`
	FirstMessageAt   time.Time    `json:"firstMessageAt,omitempty"`
	LastMessageAt    time.Time    `json:"lastMessageAt,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	LastActivityAt   time.Time    `json:"lastActivityAt"`
	Notes            []string     `json:"notes"`
	RecentReplies    []string     `json:"recentReplies"`
	NotificationSent bool         `json:"notificationSent"`
	NotifiedAt       time.Time    `json:"notifiedAt,omitempty"`
}

// NewSession creates an empty record for id
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:             id,
		Intelligence:   NewIndicatorSet(),
		Signals:        StringSet{},
		Tactics:        StringSet{},
		RedFlags:       StringSet{},
		CreatedAt:      now,
		LastActivityAt: now,
		Notes:          []string{},
		RecentReplies:  []string{},
	}
}

// Clone returns a deep copy safe to hand outside the store
func (s *Session) Clone() Session {
	out := *s
	out.Intelligence = s.Intelligence.Clone()
	out.Signals = s.Signals.Clone()
	out.Tactics = s.Tactics.Clone()
	out.RedFlags = s.RedFlags.Clone()
	out.Notes = append([]string{}, s.Notes...)
	out.RecentReplies = append([]string{}, s.RecentReplies...)
	return out
}

// IdleFor returns how long the session has been without activity
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// EngagementMetrics is what the evaluator sees about conversation length
type EngagementMetrics struct {
	EngagementDurationSeconds int `json:"engagementDurationSeconds"`
	TotalMessagesExchanged    int `json:"totalMessagesExchanged"`
}
