package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/session"
	"honeypot-lab/internal/infrastructure/database"
)

// ArchivedSession is a finalized session as stored in honeypot_sessions
type ArchivedSession struct {
	Session    models.Session           `json:"session"`
	Metrics    models.EngagementMetrics `json:"metrics"`
	ArchivedAt time.Time                `json:"archivedAt"`
}

// SessionArchiveRepository handles persistence of finalized sessions
type SessionArchiveRepository struct {
	db  *database.PostgresDB
	now func() time.Time
}

// NewSessionArchiveRepository creates a new session archive repository
func NewSessionArchiveRepository(db *database.PostgresDB) *SessionArchiveRepository {
	return &SessionArchiveRepository{db: db, now: time.Now}
}

// Archive upserts the final state of a session and replaces its indicator rows
func (r *SessionArchiveRepository) Archive(ctx context.Context, s models.Session, metrics models.EngagementMetrics) error {
	intel, err := json.Marshal(s.Intelligence)
	if err != nil {
		return fmt.Errorf("failed to marshal intelligence: %w", err)
	}

	query := `
		INSERT INTO honeypot_sessions (
			session_id, scam_detected, scam_type, confidence, turn_count,
			total_messages, duration_seconds, intelligence, signals, tactics,
			red_flags, notes, notified, first_message_at, last_message_at,
			created_at, archived_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		ON CONFLICT (session_id) DO UPDATE SET
			scam_detected = EXCLUDED.scam_detected,
			scam_type = EXCLUDED.scam_type,
			confidence = EXCLUDED.confidence,
			turn_count = EXCLUDED.turn_count,
			total_messages = GREATEST(honeypot_sessions.total_messages, EXCLUDED.total_messages),
			duration_seconds = GREATEST(honeypot_sessions.duration_seconds, EXCLUDED.duration_seconds),
			intelligence = EXCLUDED.intelligence,
			signals = EXCLUDED.signals,
			tactics = EXCLUDED.tactics,
			red_flags = EXCLUDED.red_flags,
			notes = EXCLUDED.notes,
			notified = honeypot_sessions.notified OR EXCLUDED.notified,
			first_message_at = EXCLUDED.first_message_at,
			last_message_at = EXCLUDED.last_message_at,
			archived_at = EXCLUDED.archived_at`

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			s.ID, s.ScamDetected, s.Category.String(), s.Confidence, s.TurnCount,
			metrics.TotalMessagesExchanged, metrics.EngagementDurationSeconds, intel,
			setToStrings(s.Signals), setToStrings(s.Tactics), setToStrings(s.RedFlags),
			append([]string{}, s.Notes...), s.NotificationSent,
			timeToTimestamptz(s.FirstMessageAt), timeToTimestamptz(s.LastMessageAt),
			s.CreatedAt, r.now(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert session %s: %w", s.ID, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM honeypot_indicators WHERE session_id = $1`, s.ID); err != nil {
			return fmt.Errorf("failed to clear indicators for session %s: %w", s.ID, err)
		}

		rows := indicatorRows(s.Intelligence)
		if len(rows) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, row := range rows {
			batch.Queue(
				`INSERT INTO honeypot_indicators (session_id, kind, value) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				s.ID, string(row.Kind), row.Value,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert indicators for session %s: %w", s.ID, err)
		}
		return nil
	})
}

// Get retrieves an archived session by id
func (r *SessionArchiveRepository) Get(ctx context.Context, id string) (*ArchivedSession, error) {
	query := `
		SELECT session_id, scam_detected, scam_type, confidence, turn_count,
			   total_messages, duration_seconds, intelligence, signals, tactics,
			   red_flags, notes, notified, first_message_at, last_message_at,
			   created_at, archived_at
		FROM honeypot_sessions
		WHERE session_id = $1`

	var (
		a                ArchivedSession
		category         string
		intel            []byte
		signals, tactics []string
		redFlags, notes  []string
		firstAt, lastAt  pgtype.Timestamptz
	)
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&a.Session.ID, &a.Session.ScamDetected, &category, &a.Session.Confidence, &a.Session.TurnCount,
		&a.Metrics.TotalMessagesExchanged, &a.Metrics.EngagementDurationSeconds, &intel,
		&signals, &tactics, &redFlags, &notes, &a.Session.NotificationSent,
		&firstAt, &lastAt, &a.Session.CreatedAt, &a.ArchivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get archived session %s: %w", id, err)
	}

	a.Session.Intelligence = models.NewIndicatorSet()
	if err := json.Unmarshal(intel, &a.Session.Intelligence); err != nil {
		return nil, fmt.Errorf("failed to decode intelligence for session %s: %w", id, err)
	}
	a.Session.Category = models.ScamCategory(category)
	a.Session.Signals = stringsToSet(signals)
	a.Session.Tactics = stringsToSet(tactics)
	a.Session.RedFlags = stringsToSet(redFlags)
	a.Session.Notes = notes
	a.Session.RecentReplies = []string{}
	a.Session.FirstMessageAt = timestamptzToTime(firstAt)
	a.Session.LastMessageAt = timestamptzToTime(lastAt)
	a.Session.LastActivityAt = a.ArchivedAt

	return &a, nil
}

// SessionsByIndicator returns the ids of archived sessions that surfaced value
func (r *SessionArchiveRepository) SessionsByIndicator(ctx context.Context, value string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool().Query(ctx, `
		SELECT DISTINCT session_id
		FROM honeypot_indicators
		WHERE value = $1
		ORDER BY session_id
		LIMIT $2`, value, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions by indicator: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan session ids: %w", err)
	}
	return ids, nil
}
