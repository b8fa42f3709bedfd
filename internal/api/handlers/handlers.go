package handlers

import (
	"encoding/json"
	"net/http"

	"honeypot-lab/internal/domain/services"
	"honeypot-lab/internal/domain/services/session"
	"honeypot-lab/pkg/logger"
)

// Handlers holds all API handlers
type Handlers struct {
	Health      *HealthHandler
	Analyze     *AnalyzeHandler
	Sessions    *SessionHandler
	Correlation *CorrelationHandler
}

// Dependencies holds dependencies for handlers. Correlator, Archive and the
// readiness checks are optional.
type Dependencies struct {
	Honeypot   *services.Honeypot
	Normalizer *services.Normalizer
	Store      *session.Store
	Callback   *services.CallbackService
	Pipeline   *services.IntelPipeline
	Correlator IndicatorCorrelator
	Archive    ArchiveLookup
	Checks     map[string]Check
	Version    string
	Logger     *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health:      NewHealthHandler(deps.Store, deps.Checks, deps.Version, deps.Logger),
		Analyze:     NewAnalyzeHandler(deps.Honeypot, deps.Normalizer, deps.Logger),
		Sessions:    NewSessionHandler(deps.Honeypot, deps.Callback, deps.Pipeline, deps.Logger),
		Correlation: NewCorrelationHandler(deps.Correlator, deps.Archive, deps.Logger),
	}
}

// respondJSON writes data as a JSON response
func respondJSON(log *logger.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// respondError writes an error response in the {"detail": ...} shape callers expect
func respondError(log *logger.Logger, w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		log.Error().Err(err).Int("status", status).Msg(message)
	}
	respondJSON(log, w, status, map[string]string{"detail": message})
}
