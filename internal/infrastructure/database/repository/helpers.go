package repository

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"honeypot-lab/internal/domain/models"
)

// Timestamp conversion helpers

func timeToTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func timestamptzToTime(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

// Set conversion helpers

func setToStrings(s models.StringSet) []string {
	if s.Len() == 0 {
		return []string{}
	}
	return s.Sorted()
}

func stringsToSet(values []string) models.StringSet {
	return models.NewStringSet(values...)
}

// indicatorRow is one (kind, value) pair of an indicator set
type indicatorRow struct {
	Kind  models.IndicatorKind
	Value string
}

// indicatorRows flattens an indicator set in reporting order
func indicatorRows(set models.IndicatorSet) []indicatorRow {
	var rows []indicatorRow
	for _, kind := range models.IndicatorKinds {
		for _, v := range set.Field(kind).Sorted() {
			rows = append(rows, indicatorRow{Kind: kind, Value: v})
		}
	}
	return rows
}
