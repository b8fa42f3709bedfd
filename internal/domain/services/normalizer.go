package services

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// Accepted field-name aliases, most preferred first
var (
	sessionIDAliases = []string{"sessionId", "session_id", "sessionID", "conversationId", "conversation_id", "session", "id"}
	messageAliases   = []string{"message", "currentMessage", "current_message", "msg", "input"}
	textAliases      = []string{"text", "content", "body", "message", "msg"}
	senderAliases    = []string{"sender", "from", "role", "author"}
	timestampAliases = []string{"timestamp", "ts", "time", "sentAt", "sent_at", "createdAt", "created_at"}
	historyAliases   = []string{"conversationHistory", "conversation_history", "history", "messages", "previousMessages"}
	metadataAliases  = []string{"metadata", "meta"}
)

// Epoch values below this are read as seconds, above it as milliseconds
const secondsCutoff = 1e11

// microsCutoff marks epoch values too large to be milliseconds
const microsCutoff = 1e14

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer turns loosely-shaped analyze requests into InboundTurns
type Normalizer struct {
	logger *logger.Logger
}

// NewNormalizer creates a new Normalizer
func NewNormalizer(log *logger.Logger) *Normalizer {
	return &Normalizer{
		logger: log.WithComponent("normalizer"),
	}
}

// Normalize decodes raw and maps it onto the canonical turn. It never fails:
// anything it cannot read is left at its zero value.
func (n *Normalizer) Normalize(raw []byte) models.InboundTurn {
	body, ok := decodeBody(raw)
	if !ok && len(bytes.TrimSpace(raw)) > 0 {
		n.logger.Debug().Int("bytes", len(raw)).Msg("request body is not a JSON object")
	}
	return normalizeBody(body)
}

// Normalize is the logger-free form of Normalizer.Normalize
func Normalize(raw []byte) models.InboundTurn {
	body, _ := decodeBody(raw)
	return normalizeBody(body)
}

// NormalizeMap maps an already decoded body onto the canonical turn
func NormalizeMap(body map[string]any) models.InboundTurn {
	return normalizeBody(body)
}

func decodeBody(raw []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	body, ok := v.(map[string]any)
	return body, ok
}

func normalizeBody(body map[string]any) models.InboundTurn {
	turn := models.InboundTurn{
		SessionID: models.UnknownSessionID,
		History:   []models.Message{},
	}
	if body == nil {
		return turn
	}

	if id := strings.TrimSpace(toString(lookup(body, sessionIDAliases))); id != "" {
		turn.SessionID = id
	}

	msg := lookup(body, messageAliases)
	if msg == nil {
		// a flat body carries the message fields at the top level
		if text := lookup(body, []string{"text", "content"}); text != nil {
			msg = body
		}
	}
	turn.Message = normalizeMessage(msg)

	if items, err := cast.ToSliceE(lookup(body, historyAliases)); err == nil {
		for _, item := range items {
			m := normalizeMessage(item)
			if m.Text == "" && m.Sender == "" && m.Timestamp == 0 {
				continue
			}
			turn.History = append(turn.History, m)
		}
	}

	if meta, err := cast.ToStringMapE(lookup(body, metadataAliases)); err == nil {
		turn.Channel = toString(meta["channel"])
		turn.Language = toString(meta["language"])
		turn.Locale = toString(meta["locale"])
	}
	return turn
}

func normalizeMessage(v any) models.Message {
	switch m := v.(type) {
	case nil:
		return models.Message{}
	case string:
		return models.Message{Text: m}
	case map[string]any:
		text := lookup(m, textAliases)
		// nested {"message": {"text": ...}} shapes
		if nested, ok := text.(map[string]any); ok {
			text = lookup(nested, textAliases)
		}
		return models.Message{
			Sender:    toString(lookup(m, senderAliases)),
			Text:      toString(text),
			Timestamp: NormalizeTimestamp(lookup(m, timestampAliases)),
		}
	default:
		return models.Message{Text: toString(v)}
	}
}

// NormalizeTimestamp reads an epoch value in seconds, milliseconds or
// microseconds, numeric or string, or an ISO-8601 string, and returns Unix
// milliseconds. Unreadable values yield 0.
func NormalizeTimestamp(v any) int64 {
	switch t := v.(type) {
	case nil, bool:
		return 0
	case time.Time:
		return t.UnixMilli()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		if f, err := cast.ToFloat64E(s); err == nil {
			return epochMillis(f)
		}
		for _, layout := range isoLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UnixMilli()
			}
		}
		return 0
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return epochMillis(float64(i))
		}
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return epochMillis(f)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return epochMillis(f)
}

func epochMillis(f float64) int64 {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	switch {
	case f < secondsCutoff:
		return int64(f * 1000)
	case f >= microsCutoff:
		return int64(f / 1000)
	default:
		return int64(f)
	}
}

func lookup(m map[string]any, aliases []string) any {
	for _, key := range aliases {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// toString renders scalars as text; maps and slices are not text
func toString(v any) string {
	switch v.(type) {
	case nil, map[string]any, []any:
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}
