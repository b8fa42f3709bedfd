package models

import "time"

// FinalReport is delivered once per session to the external evaluator
type FinalReport struct {
	SessionID                 string            `json:"sessionId"`
	ScamDetected              bool              `json:"scamDetected"`
	ScamType                  ScamCategory      `json:"scamType"`
	ConfidenceLevel           float64           `json:"confidenceLevel"`
	TotalMessagesExchanged    int               `json:"totalMessagesExchanged"`
	EngagementDurationSeconds int               `json:"engagementDurationSeconds"`
	ExtractedIntelligence     IndicatorSet      `json:"extractedIntelligence"`
	EngagementMetrics         EngagementMetrics `json:"engagementMetrics"`
	AgentNotes                string            `json:"agentNotes"`
}

// DeliveryStatus records the outcome of one callback attempt
type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusSkipped   DeliveryStatus = "skipped"
)

// DeliveryResult describes a finished delivery
type DeliveryResult struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionId"`
	Status     DeliveryStatus `json:"status"`
	StatusCode int            `json:"statusCode,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attempts   int            `json:"attempts"`
	Duration   time.Duration  `json:"duration"`
}
