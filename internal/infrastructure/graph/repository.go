package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

const defaultCorrelationLimit = 50

// cypherLinkIndicators upserts a session node and links it to every indicator
// in $batch
const cypherLinkIndicators = `
	MERGE (s:Session {id: $session_id})
	SET s.category = $category,
		s.scam_detected = $scam_detected,
		s.updated_at = $updated_at
	WITH s
	UNWIND $batch AS ind
	MERGE (i:Indicator {kind: ind.kind, value: ind.value})
	ON CREATE SET i.first_seen = $updated_at
	SET i.last_seen = $updated_at
	MERGE (s)-[r:SURFACED]->(i)
	ON CREATE SET r.at = $updated_at
	RETURN count(r) AS linked`

const cypherSessionsByIndicator = `
	MATCH (s:Session)-[:SURFACED]->(i:Indicator {value: $value})
	RETURN i.kind AS kind, s.id AS session_id, s.category AS category
	ORDER BY session_id
	LIMIT $limit`

const cypherRelatedSessions = `
	MATCH (s:Session {id: $session_id})-[:SURFACED]->(i:Indicator)<-[:SURFACED]-(other:Session)
	WHERE other.id <> $session_id
	RETURN other.id AS session_id, collect(DISTINCT i.value) AS shared
	ORDER BY size(shared) DESC, session_id
	LIMIT $limit`

// Correlation lists the sessions that surfaced one indicator value
type Correlation struct {
	Value    string            `json:"value"`
	Kinds    []string          `json:"kinds"`
	Sessions []CorrelatedEntry `json:"sessions"`
}

// CorrelatedEntry is one session in a correlation
type CorrelatedEntry struct {
	SessionID string   `json:"sessionId"`
	Category  string   `json:"scamType,omitempty"`
	Shared    []string `json:"shared,omitempty"`
}

// IntelGraphRepository stores the session to indicator graph
type IntelGraphRepository struct {
	client *Neo4jClient
	logger *logger.Logger
	now    func() time.Time
}

// NewIntelGraphRepository creates a new graph repository
func NewIntelGraphRepository(client *Neo4jClient, log *logger.Logger) *IntelGraphRepository {
	return &IntelGraphRepository{
		client: client,
		logger: log.WithComponent("graph-repo"),
		now:    time.Now,
	}
}

// LinkIndicators records that s surfaced the indicators in added
func (r *IntelGraphRepository) LinkIndicators(ctx context.Context, s models.Session, added models.IndicatorSet) error {
	batch := linkBatch(added)
	if len(batch) == 0 {
		return nil
	}

	params := map[string]any{
		"session_id":    s.ID,
		"category":      s.Category.String(),
		"scam_detected": s.ScamDetected,
		"updated_at":    r.now().UnixMilli(),
		"batch":         batch,
	}

	_, err := r.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypherLinkIndicators, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to link indicators for session %s: %w", s.ID, err)
	}

	r.logger.Debug().Str("session_id", s.ID).Int("indicators", len(batch)).Msg("indicators linked")
	return nil
}

// SessionsByIndicator returns every session that surfaced value
func (r *IntelGraphRepository) SessionsByIndicator(ctx context.Context, value string, limit int) (*Correlation, error) {
	if limit <= 0 {
		limit = defaultCorrelationLimit
	}

	result, err := r.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypherSessionsByIndicator, map[string]any{"value": value, "limit": limit})
		if err != nil {
			return nil, err
		}

		corr := &Correlation{Value: value, Kinds: []string{}, Sessions: []CorrelatedEntry{}}
		kinds := make(map[string]struct{})
		seen := make(map[string]struct{})
		for res.Next(ctx) {
			rec := res.Record()
			kind, _, _ := neo4j.GetRecordValue[string](rec, "kind")
			id, _, _ := neo4j.GetRecordValue[string](rec, "session_id")
			category, _, _ := neo4j.GetRecordValue[string](rec, "category")

			if _, ok := kinds[kind]; !ok && kind != "" {
				kinds[kind] = struct{}{}
				corr.Kinds = append(corr.Kinds, kind)
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			corr.Sessions = append(corr.Sessions, CorrelatedEntry{SessionID: id, Category: category})
		}
		return corr, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions for indicator: %w", err)
	}
	return result.(*Correlation), nil
}

// RelatedSessions returns sessions sharing at least one indicator with
// sessionID, most shared first
func (r *IntelGraphRepository) RelatedSessions(ctx context.Context, sessionID string, limit int) ([]CorrelatedEntry, error) {
	if limit <= 0 {
		limit = defaultCorrelationLimit
	}

	result, err := r.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypherRelatedSessions, map[string]any{"session_id": sessionID, "limit": limit})
		if err != nil {
			return nil, err
		}

		entries := []CorrelatedEntry{}
		for res.Next(ctx) {
			rec := res.Record()
			id, _, _ := neo4j.GetRecordValue[string](rec, "session_id")
			raw, _, _ := neo4j.GetRecordValue[[]any](rec, "shared")
			shared := make([]string, 0, len(raw))
			for _, v := range raw {
				if s, ok := v.(string); ok {
					shared = append(shared, s)
				}
			}
			entries = append(entries, CorrelatedEntry{SessionID: id, Shared: shared})
		}
		return entries, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query related sessions: %w", err)
	}
	return result.([]CorrelatedEntry), nil
}

// linkBatch flattens an indicator set into Cypher UNWIND parameters
func linkBatch(set models.IndicatorSet) []map[string]any {
	var batch []map[string]any
	for _, kind := range models.IndicatorKinds {
		for _, v := range set.Field(kind).Sorted() {
			batch = append(batch, map[string]any{
				"kind":  string(kind),
				"value": v,
			})
		}
	}
	return batch
}
