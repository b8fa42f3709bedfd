package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	sessions []models.Session
}

func (n *recordingNotifier) Notify(s models.Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessions = append(n.sessions, s)
}

func (n *recordingNotifier) IDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(n.sessions))
	for _, s := range n.sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func indicators(kind models.IndicatorKind, values ...string) models.IndicatorSet {
	set := models.NewIndicatorSet()
	for _, v := range values {
		set.Field(kind).Add(v)
	}
	return set
}

func newTestStore(clock *fakeClock, opts ...Option) *Store {
	cfg := DefaultConfig()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewStore(logger.NewNop(), cfg, opts...)
}

func TestMerge_CreatesSessionLazily(t *testing.T) {
	store := newTestStore(newFakeClock())

	_, ok := store.Get("s1")
	assert.False(t, ok)

	sess := store.Merge("s1", Observation{NewTurn: true})
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, 1, sess.TurnCount)
	assert.Equal(t, 1, store.Len())
}

func TestMerge_EmptyIDUsesUnknown(t *testing.T) {
	store := newTestStore(newFakeClock())

	sess := store.Merge("", Observation{})
	assert.Equal(t, models.UnknownSessionID, sess.ID)
}

func TestMerge_ScamFlagIsMonotonic(t *testing.T) {
	store := newTestStore(newFakeClock())

	store.Merge("s1", Observation{ScamDetected: true, Category: models.CategoryKYC, Confidence: 0.74})
	sess := store.Merge("s1", Observation{ScamDetected: false, Confidence: 0.5})

	assert.True(t, sess.ScamDetected)
	assert.Equal(t, models.CategoryKYC, sess.Category)
	assert.Equal(t, 0.74, sess.Confidence)
}

func TestMerge_CategoryRefinement(t *testing.T) {
	store := newTestStore(newFakeClock())

	sess := store.Merge("s1", Observation{ScamDetected: true, Category: models.CategoryGeneral})
	assert.Equal(t, models.CategoryGeneral, sess.Category)

	sess = store.Merge("s1", Observation{ScamDetected: true, Category: models.CategoryOTPFraud})
	assert.Equal(t, models.CategoryOTPFraud, sess.Category)

	// a generic verdict never replaces a specific one
	sess = store.Merge("s1", Observation{ScamDetected: true, Category: models.CategoryGeneral})
	assert.Equal(t, models.CategoryOTPFraud, sess.Category)
}

func TestMerge_UnionIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	store := newTestStore(newFakeClock(), WithEvents(sink))
	obs := Observation{Indicators: indicators(models.IndicatorUPI, "fraud@ybl")}

	store.Merge("s1", obs)
	sess := store.Merge("s1", obs)

	assert.Equal(t, []string{"fraud@ybl"}, sess.Intelligence.UPIIDs.Sorted())
	require.Len(t, sink.events, 2)
	assert.True(t, sink.events[0].HasNewIntel())
	assert.False(t, sink.events[1].HasNewIntel())
}

func TestMerge_IndicatorsNeverShrink(t *testing.T) {
	store := newTestStore(newFakeClock())

	store.Merge("s1", Observation{Indicators: indicators(models.IndicatorPhone, "9876543210", "+919876543210")})
	sess := store.Merge("s1", Observation{Indicators: indicators(models.IndicatorBank, "123456789012")})

	assert.Equal(t, 2, sess.Intelligence.PhoneNumbers.Len())
	assert.Equal(t, 1, sess.Intelligence.BankAccounts.Len())
}

func TestMerge_SessionsAreIsolated(t *testing.T) {
	store := newTestStore(newFakeClock())

	store.Merge("a", Observation{ScamDetected: true, Indicators: indicators(models.IndicatorUPI, "a@ybl")})
	store.Merge("b", Observation{Indicators: indicators(models.IndicatorUPI, "b@ybl")})

	a, _ := store.Get("a")
	b, _ := store.Get("b")
	assert.Equal(t, []string{"a@ybl"}, a.Intelligence.UPIIDs.Sorted())
	assert.Equal(t, []string{"b@ybl"}, b.Intelligence.UPIIDs.Sorted())
	assert.False(t, b.ScamDetected)
}

func TestGet_ReturnsCopy(t *testing.T) {
	store := newTestStore(newFakeClock())
	store.Merge("s1", Observation{Indicators: indicators(models.IndicatorUPI, "x@ybl"), Note: "first"})

	sess, ok := store.Get("s1")
	require.True(t, ok)
	sess.Intelligence.UPIIDs.Add("mutated@ybl")
	sess.Notes[0] = "changed"

	again, _ := store.Get("s1")
	assert.Equal(t, []string{"x@ybl"}, again.Intelligence.UPIIDs.Sorted())
	assert.Equal(t, []string{"first"}, again.Notes)
}

func TestMerge_NotesAreCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNotes = 3
	store := NewStore(logger.NewNop(), cfg)

	for i := 0; i < 5; i++ {
		store.Merge("s1", Observation{Note: fmt.Sprintf("note %d", i)})
	}

	sess, _ := store.Get("s1")
	assert.Equal(t, []string{"note 0", "note 1", "note 2"}, sess.Notes)
}

func TestMerge_ConcurrentUpdates(t *testing.T) {
	store := newTestStore(newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Merge("shared", Observation{
				NewTurn:    true,
				Indicators: indicators(models.IndicatorUPI, fmt.Sprintf("user%d@ybl", i)),
			})
		}(i)
	}
	wg.Wait()

	sess, ok := store.Get("shared")
	require.True(t, ok)
	assert.Equal(t, 50, sess.TurnCount)
	assert.Equal(t, 50, sess.Intelligence.UPIIDs.Len())
}

func TestMetrics_FiveQuickTurns(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	for i := 0; i < 5; i++ {
		store.Merge("s1", Observation{NewTurn: true})
		clock.Advance(100 * time.Millisecond)
	}

	m, ok := store.Metrics("s1")
	require.True(t, ok)
	assert.GreaterOrEqual(t, m.TotalMessagesExchanged, 10)
	assert.GreaterOrEqual(t, m.EngagementDurationSeconds, 125)
}

func TestMetrics_UsesHistoryAndTimestamps(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	start := clock.Now().Add(-time.Hour).UnixMilli()

	store.Merge("s1", Observation{
		NewTurn:    true,
		HistoryLen: 8,
		Timestamps: []int64{start, start + 600_000},
	})

	m, _ := store.Metrics("s1")
	assert.Equal(t, 10, m.TotalMessagesExchanged)
	assert.Equal(t, 600, m.EngagementDurationSeconds)
}

func TestMetrics_MessagesNeverDecrease(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	last := 0
	histories := []int{6, 0, 2, 10, 4}
	for _, h := range histories {
		store.Merge("s1", Observation{NewTurn: true, HistoryLen: h})
		m, _ := store.Metrics("s1")
		assert.GreaterOrEqual(t, m.TotalMessagesExchanged, last)
		last = m.TotalMessagesExchanged
	}
}

func TestMetrics_UnknownSession(t *testing.T) {
	store := newTestStore(newFakeClock())

	_, ok := store.Metrics("missing")
	assert.False(t, ok)
}

func TestRecordReply_KeepsRecentWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplyMemory = 2
	store := NewStore(logger.NewNop(), cfg)
	store.Merge("s1", Observation{})

	store.RecordReply("s1", "one")
	store.RecordReply("s1", "two")
	store.RecordReply("s1", "three")

	sess, _ := store.Get("s1")
	assert.Equal(t, []string{"two", "three"}, sess.RecentReplies)
}

func TestRecordTurn(t *testing.T) {
	store := newTestStore(newFakeClock())

	assert.Equal(t, 1, store.RecordTurn("s1"))
	assert.Equal(t, 2, store.RecordTurn("s1"))
}

func TestMarkNotified(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	assert.ErrorIs(t, store.MarkNotified("missing"), ErrNotFound)

	store.Merge("s1", Observation{ScamDetected: true})
	require.NoError(t, store.MarkNotified("s1"))

	sess, _ := store.Get("s1")
	assert.True(t, sess.NotificationSent)
	assert.Equal(t, clock.Now(), sess.NotifiedAt)

	// later activity does not clear the flag
	store.Merge("s1", Observation{NewTurn: true})
	sess, _ = store.Get("s1")
	assert.True(t, sess.NotificationSent)
}

func TestSweep_NotifiesIdleFlaggedSessionsOnce(t *testing.T) {
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	store := newTestStore(clock, WithNotifier(notifier))

	store.Merge("scam", Observation{ScamDetected: true})
	store.Merge("benign", Observation{})

	clock.Advance(6 * time.Minute)
	res := store.Sweep(context.Background())
	assert.Equal(t, 1, res.Notified)
	assert.Equal(t, []string{"scam"}, notifier.IDs())

	// pending notification is not repeated
	store.Sweep(context.Background())
	assert.Equal(t, []string{"scam"}, notifier.IDs())
}

func TestSweep_SkipsAlreadyNotified(t *testing.T) {
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	store := newTestStore(clock, WithNotifier(notifier))

	store.Merge("scam", Observation{ScamDetected: true})
	require.NoError(t, store.MarkNotified("scam"))

	clock.Advance(6 * time.Minute)
	store.Sweep(context.Background())
	assert.Empty(t, notifier.IDs())
}

func TestSweep_ActivityRearmsNotification(t *testing.T) {
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	store := newTestStore(clock, WithNotifier(notifier))

	store.Merge("scam", Observation{ScamDetected: true})
	clock.Advance(6 * time.Minute)
	store.Sweep(context.Background())

	// delivery failed, then the scammer came back
	store.Merge("scam", Observation{NewTurn: true})
	clock.Advance(6 * time.Minute)
	store.Sweep(context.Background())

	assert.Equal(t, []string{"scam", "scam"}, notifier.IDs())
}

func TestSweep_EvictsIdleSessions(t *testing.T) {
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	sink := &recordingSink{}
	store := newTestStore(clock, WithNotifier(notifier), WithEvents(sink))

	store.Merge("scam", Observation{ScamDetected: true})
	store.Merge("benign", Observation{})
	store.Merge("reported", Observation{ScamDetected: true})
	require.NoError(t, store.MarkNotified("reported"))

	clock.Advance(31 * time.Minute)
	res := store.Sweep(context.Background())

	assert.Equal(t, 3, res.Evicted)
	assert.Equal(t, 0, store.Len())
	// only the unreported flagged session gets a final notification
	assert.Equal(t, []string{"scam"}, notifier.IDs())
	assert.Contains(t, sink.Types(), EventEvicted)

	_, ok := store.Get("scam")
	assert.False(t, ok)
}

func TestSweep_EvictedSessionStartsFresh(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	store.Merge("s1", Observation{ScamDetected: true, NewTurn: true})
	clock.Advance(31 * time.Minute)
	store.Sweep(context.Background())

	sess := store.Merge("s1", Observation{NewTurn: true})
	assert.False(t, sess.ScamDetected)
	assert.Equal(t, 1, sess.TurnCount)
}

func TestStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	store := NewStore(logger.NewNop(), cfg)

	done := make(chan error, 1)
	go func() {
		done <- store.Start(context.Background())
	}()

	time.Sleep(30 * time.Millisecond)
	store.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	store := NewStore(logger.NewNop(), cfg)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- store.Start(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
