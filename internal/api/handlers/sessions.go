package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/internal/domain/services/session"
	"honeypot-lab/pkg/logger"
)

// SessionHandler serves the operator endpoints for individual sessions
type SessionHandler struct {
	honeypot *services.Honeypot
	callback *services.CallbackService
	pipeline *services.IntelPipeline
	logger   *logger.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(h *services.Honeypot, cb *services.CallbackService, p *services.IntelPipeline, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		honeypot: h,
		callback: cb,
		pipeline: p,
		logger:   log.WithComponent("session-handler"),
	}
}

// SessionView is the debug representation of a session
type SessionView struct {
	SessionID         string                   `json:"sessionId"`
	ScamDetected      bool                     `json:"scamDetected"`
	ScamType          models.ScamCategory      `json:"scamType"`
	ConfidenceLevel   float64                  `json:"confidenceLevel"`
	TurnCount         int                      `json:"turnCount"`
	EngagementMetrics models.EngagementMetrics `json:"engagementMetrics"`
	Intelligence      models.IndicatorSet      `json:"intelligence"`
	AgentNotes        string                   `json:"agentNotes"`
	Notes             []string                 `json:"notes"`
	CallbackSent      bool                     `json:"callbackSent"`
}

// ForceResponse is returned by the force callback endpoint
type ForceResponse struct {
	Success   bool                  `json:"success"`
	SessionID string                `json:"sessionId"`
	Delivery  models.DeliveryResult `json:"delivery"`
	Error     string                `json:"error,omitempty"`
}

// StatsResponse reports process-wide counters
type StatsResponse struct {
	Sessions int                          `json:"sessions"`
	Callback *services.CallbackStats      `json:"callback,omitempty"`
	Pipeline *services.IntelPipelineStats `json:"pipeline,omitempty"`
}

// Debug handles GET|POST /debug/session/{id}
func (h *SessionHandler) Debug(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := h.honeypot.Inspect(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondError(h.logger, w, http.StatusNotFound, "Session not found", nil)
			return
		}
		respondError(h.logger, w, http.StatusInternalServerError, "failed to load session", err)
		return
	}

	metrics, ok := h.honeypot.Metrics(id)
	if !ok {
		metrics = session.Engagement(sess, sess.LastActivityAt, session.DefaultConfig().SecondsPerTurn)
	}

	respondJSON(h.logger, w, http.StatusOK, SessionView{
		SessionID:         sess.ID,
		ScamDetected:      sess.ScamDetected,
		ScamType:          models.ScamCategory(sess.Category.String()),
		ConfidenceLevel:   sess.Confidence,
		TurnCount:         sess.TurnCount,
		EngagementMetrics: metrics,
		Intelligence:      sess.Intelligence,
		AgentNotes:        services.AgentNotes(sess),
		Notes:             sess.Notes,
		CallbackSent:      sess.NotificationSent,
	})
}

// ForceCallback handles POST /callback/force/{id}
func (h *SessionHandler) ForceCallback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.honeypot.ForceNotify(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondError(h.logger, w, http.StatusNotFound, "Session not found", nil)
			return
		}
		respondJSON(h.logger, w, http.StatusOK, ForceResponse{
			SessionID: id,
			Delivery:  result,
			Error:     err.Error(),
		})
		return
	}

	resp := ForceResponse{
		Success:   result.Status == models.DeliveryStatusDelivered,
		SessionID: id,
		Delivery:  result,
		Error:     result.Error,
	}
	respondJSON(h.logger, w, http.StatusOK, resp)
}

// Stats handles GET /debug/stats
func (h *SessionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Sessions: h.honeypot.SessionCount()}
	if h.callback != nil {
		stats := h.callback.Stats()
		resp.Callback = &stats
	}
	if h.pipeline != nil {
		stats := h.pipeline.Stats()
		resp.Pipeline = &stats
	}
	respondJSON(h.logger, w, http.StatusOK, resp)
}
