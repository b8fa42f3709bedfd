package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"honeypot-lab/internal/infrastructure/graph"
	"honeypot-lab/pkg/logger"
)

const maxCorrelationLimit = 500

// IndicatorCorrelator answers cross-session questions from the indicator graph
type IndicatorCorrelator interface {
	SessionsByIndicator(ctx context.Context, value string, limit int) (*graph.Correlation, error)
	RelatedSessions(ctx context.Context, sessionID string, limit int) ([]graph.CorrelatedEntry, error)
}

// ArchiveLookup finds archived sessions by indicator value
type ArchiveLookup interface {
	SessionsByIndicator(ctx context.Context, value string, limit int) ([]string, error)
}

// CorrelationHandler handles correlation API requests
type CorrelationHandler struct {
	graph   IndicatorCorrelator
	archive ArchiveLookup
	logger  *logger.Logger
}

// NewCorrelationHandler creates a new correlation handler. Either source may
// be nil.
func NewCorrelationHandler(g IndicatorCorrelator, a ArchiveLookup, log *logger.Logger) *CorrelationHandler {
	return &CorrelationHandler{
		graph:   g,
		archive: a,
		logger:  log.WithComponent("correlation-handler"),
	}
}

// ByIndicator handles GET /api/v1/correlations/{value}. The graph answers when
// configured; otherwise the archive does, without category details.
func (h *CorrelationHandler) ByIndicator(w http.ResponseWriter, r *http.Request) {
	value := strings.TrimSpace(chi.URLParam(r, "value"))
	if value == "" {
		respondError(h.logger, w, http.StatusBadRequest, "indicator value required", nil)
		return
	}
	limit := parseLimit(r)

	switch {
	case h.graph != nil:
		corr, err := h.graph.SessionsByIndicator(r.Context(), value, limit)
		if err != nil {
			respondError(h.logger, w, http.StatusBadGateway, "correlation lookup failed", err)
			return
		}
		respondJSON(h.logger, w, http.StatusOK, corr)

	case h.archive != nil:
		ids, err := h.archive.SessionsByIndicator(r.Context(), value, limit)
		if err != nil {
			respondError(h.logger, w, http.StatusBadGateway, "correlation lookup failed", err)
			return
		}
		corr := graph.Correlation{Value: value, Kinds: []string{}, Sessions: make([]graph.CorrelatedEntry, 0, len(ids))}
		for _, id := range ids {
			corr.Sessions = append(corr.Sessions, graph.CorrelatedEntry{SessionID: id})
		}
		respondJSON(h.logger, w, http.StatusOK, corr)

	default:
		respondError(h.logger, w, http.StatusServiceUnavailable, "correlation store not configured", nil)
	}
}

// RelatedSessions handles GET /api/v1/correlations/session/{id}
func (h *CorrelationHandler) RelatedSessions(w http.ResponseWriter, r *http.Request) {
	if h.graph == nil {
		respondError(h.logger, w, http.StatusServiceUnavailable, "correlation graph not configured", nil)
		return
	}

	id := chi.URLParam(r, "id")
	entries, err := h.graph.RelatedSessions(r.Context(), id, parseLimit(r))
	if err != nil {
		respondError(h.logger, w, http.StatusBadGateway, "correlation lookup failed", err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, map[string]any{
		"sessionId": id,
		"related":   entries,
	})
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 0
	}
	if limit > maxCorrelationLimit {
		return maxCorrelationLimit
	}
	return limit
}
