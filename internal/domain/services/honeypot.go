package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/ai"
	"honeypot-lab/internal/domain/services/persona"
	"honeypot-lab/internal/domain/services/session"
	"honeypot-lab/pkg/logger"
)

// StatusSuccess is the only status a turn result ever carries
const StatusSuccess = "success"

// FallbackReply is used when a turn could not be processed
const FallbackReply = "Sorry, I didn't understand. Can you explain again?"

const logTextRunes = 80

// Reporter delivers final session reports
type Reporter interface {
	// Notify queues a report without waiting
	Notify(s models.Session)

	// Deliver sends a report and waits for the outcome
	Deliver(ctx context.Context, s models.Session) (models.DeliveryResult, error)
}

// HoneypotConfig tunes the orchestrator
type HoneypotConfig struct {
	// NotifyEveryTurn reports flagged sessions holding payment intel after
	// every turn instead of only once they go idle
	NotifyEveryTurn bool
}

// HoneypotDeps are the collaborators a Honeypot drives. Reporter and Mirror
// are optional.
type HoneypotDeps struct {
	Extractor *ai.EntityExtractor
	Detector  *ai.ScamDetector
	Selector  *persona.Selector
	Store     *session.Store
	Reporter  Reporter
	Mirror    SessionMirror
}

// Honeypot runs one inbound turn through extraction, classification, the
// session store and reply selection
type Honeypot struct {
	extractor *ai.EntityExtractor
	detector  *ai.ScamDetector
	selector  *persona.Selector
	store     *session.Store
	reporter  Reporter
	mirror    SessionMirror
	config    HoneypotConfig
	logger    *logger.Logger
}

// NewHoneypot creates a new Honeypot
func NewHoneypot(log *logger.Logger, deps HoneypotDeps, cfg HoneypotConfig) *Honeypot {
	return &Honeypot{
		extractor: deps.Extractor,
		detector:  deps.Detector,
		selector:  deps.Selector,
		store:     deps.Store,
		reporter:  deps.Reporter,
		mirror:    deps.Mirror,
		config:    cfg,
		logger:    log.WithComponent("honeypot"),
	}
}

// HandleTurn processes one inbound message and returns the reply payload. It
// never fails: a panic while handling the turn is recovered into a fallback
// result built from whatever the session already holds.
func (h *Honeypot) HandleTurn(ctx context.Context, turn models.InboundTurn) (result models.TurnResult) {
	start := time.Now()
	id := strings.TrimSpace(turn.SessionID)
	if id == "" {
		id = models.UnknownSessionID
	}
	log := h.logger.WithSessionID(id)

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("turn handling panicked, returning fallback")
			result = h.fallback(id)
		}
	}()

	text := turn.Message.Text
	history := turn.HistoryTexts()
	log.Debug().Str("text", truncate(text, logTextRunes)).Int("history", len(history)).Msg("turn received")

	prior, known := h.store.Get(id)
	flagged := known && prior.ScamDetected

	var verdict ai.Verdict
	if flagged {
		// a flagged session is never re-scored; the category only steers the reply
		verdict = ai.Verdict{
			IsScam:   true,
			Category: h.detector.Categorize(text),
			Signals:  []string{},
			Families: []string{},
		}
	} else {
		verdict = h.detector.Classify(text, history)
		if verdict.IsScam && verdict.Category.IsGeneric() && len(history) > 0 {
			if c := h.detector.Categorize(strings.Join(history, " ")); !c.IsGeneric() {
				verdict.Category = c
			}
		}
	}

	texts := append(append([]string{}, history...), text)
	found := h.extractor.ExtractAll(texts...)
	redFlags := ai.DetectRedFlags(text)

	obs := session.Observation{
		Indicators: found,
		Signals:    verdict.Signals,
		Tactics:    verdict.Families,
		NewTurn:    true,
		HistoryLen: len(turn.History),
		Timestamps: turn.Timestamps(),
		Note:       turnNote(prior.TurnCount+1, verdict, found),
	}
	if !flagged && verdict.IsScam {
		obs.ScamDetected = true
		obs.Category = verdict.Category
		obs.Confidence = h.detector.Confidence(verdict.Score)
	}
	if flagged || verdict.IsScam {
		obs.RedFlags = redFlagCodes(redFlags)
	}

	sess := h.store.Merge(id, obs)

	register := ai.DetectRegister(text)
	var reply string
	if sess.ScamDetected {
		category := sess.Category
		if flagged && !verdict.Category.IsGeneric() {
			category = verdict.Category
		}
		reply = h.selector.Compose(persona.ReplyRequest{
			Category: category,
			Turn:     sess.TurnCount,
			Register: register,
			RedFlags: redFlags,
			Prior:    sess.RecentReplies,
		})
	} else {
		reply = h.selector.Confused(register, sess.TurnCount, sess.RecentReplies)
	}
	h.store.RecordReply(id, reply)

	result = h.buildResult(sess, reply)

	if !flagged && sess.ScamDetected {
		log.Info().
			Str("category", sess.Category.String()).
			Int("score", verdict.Score).
			Strs("signals", verdict.Signals).
			Msg("scam detected")
	}
	if h.config.NotifyEveryTurn && h.reporter != nil && sess.ScamDetected && sess.Intelligence.HasPaymentIntel() {
		h.reporter.Notify(sess)
	}

	log.Info().
		Bool("scam", sess.ScamDetected).
		Str("category", sess.Category.String()).
		Int("turn", sess.TurnCount).
		Int("messages", result.TotalMessagesExchanged).
		Str("register", string(register)).
		Interface("indicators", sess.Intelligence.Counts()).
		Dur("took", time.Since(start)).
		Msg("turn handled")

	return result
}

func (h *Honeypot) buildResult(sess models.Session, reply string) models.TurnResult {
	metrics := h.store.Engagement(sess)
	return models.TurnResult{
		SessionID:                 sess.ID,
		Status:                    StatusSuccess,
		ScamDetected:              sess.ScamDetected,
		ScamType:                  models.ScamCategory(sess.Category.String()),
		ConfidenceLevel:           confidenceOf(sess),
		TotalMessagesExchanged:    metrics.TotalMessagesExchanged,
		EngagementDurationSeconds: metrics.EngagementDurationSeconds,
		ExtractedIntelligence:     sess.Intelligence.Clone(),
		EngagementMetrics:         metrics,
		AgentNotes:                AgentNotes(sess),
		Reply:                     reply,
	}
}

// fallback builds a safe result without touching the classifier or selector
func (h *Honeypot) fallback(id string) (result models.TurnResult) {
	result = models.TurnResult{
		SessionID:             id,
		Status:                StatusSuccess,
		ScamType:              models.CategoryGeneral,
		ExtractedIntelligence: models.NewIndicatorSet(),
		AgentNotes:            NotesNoScam,
		Reply:                 FallbackReply,
	}
	defer func() {
		// the session state itself may be what is broken
		if r := recover(); r != nil {
			h.logger.Error().Str("panic", fmt.Sprint(r)).Str("session_id", id).Msg("fallback failed")
		}
	}()
	if sess, ok := h.store.Get(id); ok {
		result = h.buildResult(sess, FallbackReply)
	}
	return result
}

// Inspect returns the full record for id, from memory or from the mirror once
// the session has been evicted
func (h *Honeypot) Inspect(ctx context.Context, id string) (models.Session, error) {
	if sess, ok := h.store.Get(id); ok {
		return sess, nil
	}
	if h.mirror == nil {
		return models.Session{}, session.ErrNotFound
	}
	sess, err := h.mirror.LoadSession(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return models.Session{}, err
		}
		return models.Session{}, fmt.Errorf("failed to load session from mirror: %w", err)
	}
	return sess, nil
}

// ForceNotify delivers the final report for a live session right away,
// regardless of idle state, and returns the delivery outcome. A failed
// delivery is reported through the result, not as an error.
func (h *Honeypot) ForceNotify(ctx context.Context, id string) (models.DeliveryResult, error) {
	sess, ok := h.store.Get(id)
	if !ok {
		return models.DeliveryResult{SessionID: id, Status: models.DeliveryStatusSkipped}, session.ErrNotFound
	}
	if h.reporter == nil {
		return models.DeliveryResult{SessionID: id, Status: models.DeliveryStatusSkipped}, ErrCallbackDisabled
	}

	result, err := h.reporter.Deliver(ctx, sess)
	if errors.Is(err, ErrCallbackDisabled) {
		return result, err
	}
	h.logger.Info().
		Str("session_id", id).
		Str("status", string(result.Status)).
		Int("attempts", result.Attempts).
		Msg("forced notification finished")
	return result, nil
}

// Metrics returns the current engagement estimate for id
func (h *Honeypot) Metrics(id string) (models.EngagementMetrics, bool) {
	return h.store.Metrics(id)
}

func confidenceOf(sess models.Session) float64 {
	if !sess.ScamDetected {
		return 0
	}
	return sess.Confidence
}

func redFlagCodes(flags []ai.RedFlag) []string {
	codes := make([]string, 0, len(flags))
	for _, f := range flags {
		codes = append(codes, f.Code)
	}
	return codes
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// SessionCount returns the number of sessions held in memory
func (h *Honeypot) SessionCount() int {
	return h.store.Len()
}
