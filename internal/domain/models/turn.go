package models

// UnknownSessionID is used when a request carries no usable session identifier
const UnknownSessionID = "unknown"

// Message is one entry of a conversation as supplied by the caller. Timestamp
// holds whatever the caller sent, normalized to Unix milliseconds (0 if absent).
type Message struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// InboundTurn is the canonical form of one analyze request
type InboundTurn struct {
	SessionID string    `json:"sessionId"`
	Message   Message   `json:"message"`
	History   []Message `json:"conversationHistory"`
	Channel   string    `json:"channel,omitempty"`
	Language  string    `json:"language,omitempty"`
	Locale    string    `json:"locale,omitempty"`
}

// HistoryTexts returns the text of every history entry that has any
func (t InboundTurn) HistoryTexts() []string {
	texts := make([]string, 0, len(t.History))
	for _, m := range t.History {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

// Timestamps returns every non-zero timestamp in the turn, history first
func (t InboundTurn) Timestamps() []int64 {
	ts := make([]int64, 0, len(t.History)+1)
	for _, m := range t.History {
		if m.Timestamp != 0 {
			ts = append(ts, m.Timestamp)
		}
	}
	if t.Message.Timestamp != 0 {
		ts = append(ts, t.Message.Timestamp)
	}
	return ts
}

// TurnResult is returned to the caller for every inbound turn
type TurnResult struct {
	SessionID                 string            `json:"sessionId"`
	Status                    string            `json:"status"`
	ScamDetected              bool              `json:"scamDetected"`
	ScamType                  ScamCategory      `json:"scamType"`
	ConfidenceLevel           float64           `json:"confidenceLevel"`
	TotalMessagesExchanged    int               `json:"totalMessagesExchanged"`
	EngagementDurationSeconds int               `json:"engagementDurationSeconds"`
	ExtractedIntelligence     IndicatorSet      `json:"extractedIntelligence"`
	EngagementMetrics         EngagementMetrics `json:"engagementMetrics"`
	AgentNotes                string            `json:"agentNotes"`
	Reply                     string            `json:"reply"`
}
