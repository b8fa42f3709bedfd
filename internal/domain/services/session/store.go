package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// ErrNotFound is returned when no live session exists for an identifier
var ErrNotFound = errors.New("session not found")

// Config controls idle handling and engagement estimates
type Config struct {
	NotifyAfterIdle time.Duration
	EvictAfterIdle  time.Duration
	SweepInterval   time.Duration
	SecondsPerTurn  int
	ReplyMemory     int
	MaxNotes        int
}

// DefaultConfig returns the stock session settings
func DefaultConfig() Config {
	return Config{
		NotifyAfterIdle: 5 * time.Minute,
		EvictAfterIdle:  30 * time.Minute,
		SweepInterval:   time.Minute,
		SecondsPerTurn:  25,
		ReplyMemory:     8,
		MaxNotes:        200,
	}
}

// Observation is what one turn contributes to a session
type Observation struct {
	Indicators   models.IndicatorSet
	ScamDetected bool
	Category     models.ScamCategory
	Confidence   float64
	Signals      []string
	Tactics      []string
	RedFlags     []string
	NewTurn      bool
	HistoryLen   int     // messages the caller says came before this one
	Timestamps   []int64 // unix milliseconds supplied by the caller
	Note         string
}

// Notifier receives flagged sessions that need a final report. Notify must
// not block on network I/O.
type Notifier interface {
	Notify(s models.Session)
}

// EventSink receives store change events. Publish must not block.
type EventSink interface {
	Publish(e Event)
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithNotifier sets where idle flagged sessions are reported
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithEvents sets the change event sink
func WithEvents(sink EventSink) Option {
	return func(s *Store) {
		s.events = sink
	}
}

// entry guards one session. The store map lock is never held while an
// entry lock is being acquired.
type entry struct {
	mu            sync.Mutex
	session       *models.Session
	evicted       bool
	notifyPending bool
}

// Store holds one record per conversation. Records are created lazily, merged
// under a per-session lock, and evicted by the sweep loop once idle.
type Store struct {
	logger   *logger.Logger
	config   Config
	now      func() time.Time
	notifier Notifier
	events   EventSink

	mu      sync.RWMutex
	entries map[string]*entry

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewStore creates a new session store
func NewStore(log *logger.Logger, config Config, opts ...Option) *Store {
	defaults := DefaultConfig()
	if config.NotifyAfterIdle <= 0 {
		config.NotifyAfterIdle = defaults.NotifyAfterIdle
	}
	if config.EvictAfterIdle <= 0 {
		config.EvictAfterIdle = defaults.EvictAfterIdle
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.SecondsPerTurn < 0 {
		config.SecondsPerTurn = 0
	}
	if config.ReplyMemory <= 0 {
		config.ReplyMemory = defaults.ReplyMemory
	}
	if config.MaxNotes <= 0 {
		config.MaxNotes = defaults.MaxNotes
	}

	s := &Store{
		logger:  log.WithComponent("session-store"),
		config:  config,
		now:     time.Now,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockEntry returns the locked entry for id, creating it when asked. An
// entry evicted between lookup and lock is skipped and looked up again.
func (s *Store) lockEntry(id string, create bool) *entry {
	for {
		s.mu.RLock()
		e := s.entries[id]
		s.mu.RUnlock()

		if e == nil {
			if !create {
				return nil
			}
			s.mu.Lock()
			e = s.entries[id]
			if e == nil {
				e = &entry{session: models.NewSession(id, s.now())}
				s.entries[id] = e
				s.logger.Debug().Str("session_id", id).Msg("session created")
			}
			s.mu.Unlock()
		}

		e.mu.Lock()
		if !e.evicted {
			return e
		}
		e.mu.Unlock()
		if !create {
			return nil
		}
	}
}

// Merge folds an observation into the session for id, creating it on first
// sight, and returns a copy of the updated record.
//
// Indicators are unioned, the scam flag is OR-ed, and the category is set on
// first detection and afterwards only replaced by a specific category.
func (s *Store) Merge(id string, obs Observation) models.Session {
	if id == "" {
		id = models.UnknownSessionID
	}
	e := s.lockEntry(id, true)
	now := s.now()
	sess := e.session

	added := sess.Intelligence.Union(obs.Indicators)

	if obs.ScamDetected {
		category := obs.Category
		if category == "" {
			category = models.CategoryGeneral
		}
		if !sess.ScamDetected || !category.IsGeneric() {
			sess.Category = category
		}
		sess.ScamDetected = true
	}
	if obs.Confidence > sess.Confidence {
		sess.Confidence = obs.Confidence
	}
	addAll(sess.Signals, obs.Signals)
	addAll(sess.Tactics, obs.Tactics)
	addAll(sess.RedFlags, obs.RedFlags)
	if obs.NewTurn {
		sess.TurnCount++
	}
	if obs.HistoryLen > sess.HistoryMessages {
		sess.HistoryMessages = obs.HistoryLen
	}
	for _, ms := range obs.Timestamps {
		observeTimestamp(sess, ms)
	}
	if obs.Note != "" && len(sess.Notes) < s.config.MaxNotes {
		sess.Notes = append(sess.Notes, obs.Note)
	}
	sess.LastActivityAt = now
	e.notifyPending = false

	snapshot := sess.Clone()
	e.mu.Unlock()

	s.publish(Event{Type: EventUpdated, Session: snapshot, Added: added, At: now})
	return snapshot
}

func addAll(dst models.StringSet, values []string) {
	for _, v := range values {
		dst.Add(v)
	}
}

func observeTimestamp(sess *models.Session, ms int64) {
	if ms <= 0 {
		return
	}
	t := time.UnixMilli(ms)
	if sess.FirstMessageAt.IsZero() || t.Before(sess.FirstMessageAt) {
		sess.FirstMessageAt = t
	}
	if sess.LastMessageAt.IsZero() || t.After(sess.LastMessageAt) {
		sess.LastMessageAt = t
	}
}

// RecordTurn counts one processed turn for id and returns the new count
func (s *Store) RecordTurn(id string) int {
	e := s.lockEntry(id, true)
	defer e.mu.Unlock()
	e.session.TurnCount++
	e.session.LastActivityAt = s.now()
	return e.session.TurnCount
}

// RecordReply remembers a reply sent on id so later replies avoid it
func (s *Store) RecordReply(id, reply string) {
	if reply == "" {
		return
	}
	e := s.lockEntry(id, false)
	if e == nil {
		return
	}
	defer e.mu.Unlock()

	replies := append(e.session.RecentReplies, reply)
	if n := len(replies) - s.config.ReplyMemory; n > 0 {
		replies = append([]string{}, replies[n:]...)
	}
	e.session.RecentReplies = replies
}

// Get returns a copy of the session for id
func (s *Store) Get(id string) (models.Session, bool) {
	e := s.lockEntry(id, false)
	if e == nil {
		return models.Session{}, false
	}
	defer e.mu.Unlock()
	return e.session.Clone(), true
}

// Metrics returns the engagement estimate for id
func (s *Store) Metrics(id string) (models.EngagementMetrics, bool) {
	sess, ok := s.Get(id)
	if !ok {
		return models.EngagementMetrics{}, false
	}
	return s.Engagement(sess), true
}

// Engagement estimates the metrics for a session copy at the current time
func (s *Store) Engagement(sess models.Session) models.EngagementMetrics {
	return Engagement(sess, s.now(), s.config.SecondsPerTurn)
}

// Engagement computes the reported metrics for a session.
//
// Messages exchanged is the larger of two per observed turn and the longest
// caller-supplied history plus the current exchange. Duration is the largest
// of wall-clock age, the caller's timestamp span, and a per-turn floor.
func Engagement(sess models.Session, now time.Time, secondsPerTurn int) models.EngagementMetrics {
	messages := sess.TurnCount * 2
	if sess.HistoryMessages > 0 && sess.HistoryMessages+2 > messages {
		messages = sess.HistoryMessages + 2
	}

	duration := time.Duration(0)
	if !sess.CreatedAt.IsZero() {
		duration = now.Sub(sess.CreatedAt)
	}
	if !sess.FirstMessageAt.IsZero() {
		if span := sess.LastMessageAt.Sub(sess.FirstMessageAt); span > duration {
			duration = span
		}
	}
	if floor := time.Duration(sess.TurnCount*secondsPerTurn) * time.Second; floor > duration {
		duration = floor
	}
	if duration < 0 {
		duration = 0
	}

	return models.EngagementMetrics{
		EngagementDurationSeconds: int(duration / time.Second),
		TotalMessagesExchanged:    messages,
	}
}

// MarkNotified records a confirmed delivery for id. The flag is never cleared.
func (s *Store) MarkNotified(id string) error {
	e := s.lockEntry(id, false)
	if e == nil {
		return ErrNotFound
	}
	defer e.mu.Unlock()

	if !e.session.NotificationSent {
		e.session.NotificationSent = true
		e.session.NotifiedAt = s.now()
	}
	e.notifyPending = false
	return nil
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Notified int
	Evicted  int
}

// Sweep hands idle flagged sessions to the notifier and evicts sessions idle
// past the eviction threshold. A flagged session that was never reported gets
// one more notification as it is evicted.
func (s *Store) Sweep(ctx context.Context) SweepResult {
	var result SweepResult
	now := s.now()

	s.mu.RLock()
	candidates := make(map[string]*entry, len(s.entries))
	for id, e := range s.entries {
		candidates[id] = e
	}
	s.mu.RUnlock()

	for id, e := range candidates {
		if ctx.Err() != nil {
			break
		}

		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		sess := e.session
		idle := sess.IdleFor(now)
		unreported := sess.ScamDetected && !sess.NotificationSent

		switch {
		case idle >= s.config.EvictAfterIdle:
			e.evicted = true
			snapshot := sess.Clone()
			e.mu.Unlock()

			s.mu.Lock()
			if s.entries[id] == e {
				delete(s.entries, id)
			}
			s.mu.Unlock()

			if unreported && s.notifier != nil {
				s.notifier.Notify(snapshot)
				result.Notified++
			}
			s.publish(Event{Type: EventEvicted, Session: snapshot, At: now})
			result.Evicted++

			s.logger.Debug().
				Str("session_id", id).
				Dur("idle", idle).
				Bool("final_notify", unreported).
				Msg("session evicted")

		case idle >= s.config.NotifyAfterIdle && unreported && !e.notifyPending && s.notifier != nil:
			e.notifyPending = true
			snapshot := sess.Clone()
			e.mu.Unlock()

			s.notifier.Notify(snapshot)
			result.Notified++

		default:
			e.mu.Unlock()
		}
	}

	if result.Notified > 0 || result.Evicted > 0 {
		s.logger.Info().
			Int("notified", result.Notified).
			Int("evicted", result.Evicted).
			Int("live", s.Len()).
			Msg("session sweep completed")
	}
	return result
}

// Start runs the sweep loop until Stop is called or ctx is done
func (s *Store) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.runMu.Unlock()

	s.logger.Info().
		Dur("interval", s.config.SweepInterval).
		Dur("notify_after", s.config.NotifyAfterIdle).
		Dur("evict_after", s.config.EvictAfterIdle).
		Msg("session sweeper started")

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return nil
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Stop stops the sweep loop
func (s *Store) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.logger.Info().Msg("session sweeper stopped")
}

func (s *Store) publish(e Event) {
	if s.events != nil {
		s.events.Publish(e)
	}
}
