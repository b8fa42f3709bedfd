package handlers

import (
	"io"
	"net/http"

	"honeypot-lab/internal/domain/services"
	"honeypot-lab/pkg/logger"
)

const maxBodyBytes = 1 << 20

// AnalyzeHandler serves the turn endpoint
type AnalyzeHandler struct {
	honeypot   *services.Honeypot
	normalizer *services.Normalizer
	logger     *logger.Logger
}

// NewAnalyzeHandler creates a new AnalyzeHandler
func NewAnalyzeHandler(h *services.Honeypot, n *services.Normalizer, log *logger.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		honeypot:   h,
		normalizer: n,
		logger:     log.WithComponent("analyze-handler"),
	}
}

// Analyze handles POST /analyze. It always answers 200: a body that cannot be
// read or decoded becomes an empty turn.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to read request body, treating as empty")
		raw = nil
	}

	turn := h.normalizer.Normalize(raw)
	result := h.honeypot.HandleTurn(r.Context(), turn)

	respondJSON(h.logger, w, http.StatusOK, result)
}
