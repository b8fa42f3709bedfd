package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/ai"
	"honeypot-lab/internal/domain/services/persona"
	"honeypot-lab/internal/domain/services/session"
	"honeypot-lab/pkg/logger"
)

const (
	kycMessage = "Your bank account has been compromised. Call 9876543210 immediately to update KYC."
	upiMessage = "Send Rs 1 to verify your UPI ID scammer@ybl for RBI compliance."
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeReporter struct {
	mu        sync.Mutex
	notified  []models.Session
	delivered []models.Session
	result    models.DeliveryResult
	err       error
}

func (r *fakeReporter) Notify(s models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, s)
}

func (r *fakeReporter) Deliver(_ context.Context, s models.Session) (models.DeliveryResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, s)
	return r.result, r.err
}

type fakeMirror struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{sessions: make(map[string]models.Session)}
}

func (m *fakeMirror) SaveSession(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *fakeMirror) LoadSession(_ context.Context, id string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.Session{}, session.ErrNotFound
	}
	return s, nil
}

type fixture struct {
	honeypot *Honeypot
	store    *session.Store
	clock    *testClock
	reporter *fakeReporter
	mirror   *fakeMirror
}

func newFixture(t *testing.T, cfg HoneypotConfig) *fixture {
	t.Helper()
	log := logger.NewNop()

	corpus, err := persona.DefaultCorpus()
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := session.NewStore(log, session.DefaultConfig(), session.WithClock(clock.Now))
	reporter := &fakeReporter{}
	mirror := newFakeMirror()

	h := NewHoneypot(log, HoneypotDeps{
		Extractor: ai.NewEntityExtractor(log),
		Detector:  ai.NewScamDetector(log, ai.DefaultScamDetectorConfig()),
		Selector:  persona.NewSelector(log, corpus, persona.WithSeed(7)),
		Store:     store,
		Reporter:  reporter,
		Mirror:    mirror,
	}, cfg)

	return &fixture{honeypot: h, store: store, clock: clock, reporter: reporter, mirror: mirror}
}

func turnOf(id, text string, history ...string) models.InboundTurn {
	turn := models.InboundTurn{
		SessionID: id,
		Message:   models.Message{Sender: "scammer", Text: text},
		History:   []models.Message{},
	}
	for _, h := range history {
		turn.History = append(turn.History, models.Message{Sender: "scammer", Text: h})
	}
	return turn
}

func TestHandleTurn_KYCScenario(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})

	res := f.honeypot.HandleTurn(context.Background(), turnOf("s1", kycMessage))

	assert.Equal(t, StatusSuccess, res.Status)
	assert.True(t, res.ScamDetected)
	assert.Equal(t, models.CategoryKYC, res.ScamType)
	assert.Equal(t, 0.74, res.ConfidenceLevel)
	assert.True(t, res.ExtractedIntelligence.PhoneNumbers.Has("9876543210"))
	assert.True(t, res.ExtractedIntelligence.PhoneNumbers.Has("+919876543210"))
	assert.NotEmpty(t, res.Reply)
	assert.Contains(t, res.AgentNotes, "Scam Type: KYC_FRAUD")
	assert.Contains(t, res.AgentNotes, "2 phone numbers")
}

func TestHandleTurn_UPIScenario(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})

	res := f.honeypot.HandleTurn(context.Background(), turnOf("s1", upiMessage))

	assert.True(t, res.ScamDetected)
	assert.True(t, res.ExtractedIntelligence.UPIIDs.Has("scammer@ybl"))
	assert.False(t, res.ExtractedIntelligence.EmailAddresses.Has("scammer@ybl"))
}

func TestHandleTurn_ResultAlwaysCarriesEveryField(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})

	res := f.honeypot.HandleTurn(context.Background(), turnOf("s1", "hello"))
	data, err := json.Marshal(res)
	require.NoError(t, err)

	for _, field := range []string{
		`"phoneNumbers":[]`, `"bankAccounts":[]`, `"upiIds":[]`, `"phishingLinks":[]`,
		`"emailAddresses":[]`, `"caseIds":[]`, `"policyNumbers":[]`, `"orderNumbers":[]`,
	} {
		assert.Contains(t, string(data), field)
	}
}

func TestHandleTurn_BenignGetsConfusedReply(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})

	res := f.honeypot.HandleTurn(context.Background(), turnOf("s1", "Hi, is this Ramesh?"))

	assert.False(t, res.ScamDetected)
	assert.Equal(t, NotesNoScam, res.AgentNotes)
	assert.Zero(t, res.ConfidenceLevel)
	assert.NotEmpty(t, res.Reply)
}

func TestHandleTurn_FlagIsMonotonic(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})
	ctx := context.Background()

	f.honeypot.HandleTurn(ctx, turnOf("s1", kycMessage))
	res := f.honeypot.HandleTurn(ctx, turnOf("s1", "ok"))

	assert.True(t, res.ScamDetected)
	assert.Equal(t, models.CategoryKYC, res.ScamType)
	assert.True(t, res.ExtractedIntelligence.PhoneNumbers.Has("9876543210"))
}

func TestHandleTurn_FiveQuickTurns(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})
	ctx := context.Background()

	var res models.TurnResult
	for i := 0; i < 5; i++ {
		res = f.honeypot.HandleTurn(ctx, turnOf("s1", kycMessage))
		f.clock.Advance(100 * time.Millisecond)
	}

	assert.Equal(t, 10, res.TotalMessagesExchanged)
	assert.GreaterOrEqual(t, res.EngagementDurationSeconds, 125)
	assert.Equal(t, res.EngagementMetrics.TotalMessagesExchanged, res.TotalMessagesExchanged)
}

func TestHandleTurn_MessagesNeverDecrease(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})
	ctx := context.Background()

	history := []string{"a", "b", "c", "d", "e", "f"}
	last := 0
	for _, n := range []int{6, 0, 2, 4} {
		res := f.honeypot.HandleTurn(ctx, turnOf("s1", "pay now", history[:n]...))
		assert.GreaterOrEqual(t, res.TotalMessagesExchanged, last)
		last = res.TotalMessagesExchanged
	}
}

func TestHandleTurn_InterleavedSessionsStayIsolated(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.honeypot.HandleTurn(ctx, turnOf("a", "Pay to alpha@ybl now"))
		}()
		go func() {
			defer wg.Done()
			f.honeypot.HandleTurn(ctx, turnOf("b", "Pay to bravo@paytm now"))
		}()
	}
	wg.Wait()

	a, err := f.honeypot.Inspect(ctx, "a")
	require.NoError(t, err)
	b, err := f.honeypot.Inspect(ctx, "b")
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha@ybl"}, a.Intelligence.UPIIDs.Sorted())
	assert.Equal(t, []string{"bravo@paytm"}, b.Intelligence.UPIIDs.Sorted())
	assert.Equal(t, 10, a.TurnCount)
	assert.Equal(t, 10, b.TurnCount)
}

func TestHandleTurn_ExtractsFromHistory(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})

	res := f.honeypot.HandleTurn(context.Background(),
		turnOf("s1", "Did you do it?", "Transfer to account 123456789012 IFSC SBIN0001234"))

	assert.True(t, res.ExtractedIntelligence.BankAccounts.Has("123456789012"))
	assert.True(t, res.ExtractedIntelligence.IFSCCodes.Has("SBIN0001234"))
}

func TestHandleTurn_HistoryRefinesGenericCategory(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})

	res := f.honeypot.HandleTurn(context.Background(), turnOf("s1",
		"Act now! This is your final warning, hurry, contact our official helpline today.",
		"Your KYC document is pending"))

	assert.True(t, res.ScamDetected)
	assert.Equal(t, models.CategoryKYC, res.ScamType)
}

func TestHandleTurn_ConsecutiveRepliesDiffer(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})
	ctx := context.Background()

	prev := ""
	for turn := 1; turn <= 6; turn++ {
		res := f.honeypot.HandleTurn(ctx, turnOf("s1", kycMessage))
		assert.NotEqual(t, prev, res.Reply, "turn %d", turn)
		prev = res.Reply
	}
}

func TestHandleTurn_EmptyIDUsesPlaceholder(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})

	res := f.honeypot.HandleTurn(context.Background(), turnOf("", "hello"))

	assert.Equal(t, models.UnknownSessionID, res.SessionID)
}

func TestHandleTurn_RecoversFromPanic(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})
	// a Honeypot without a selector panics once it tries to reply
	f.honeypot.selector = nil

	res := f.honeypot.HandleTurn(context.Background(), turnOf("s1", kycMessage))

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, FallbackReply, res.Reply)
	// state merged before the fault is still reported
	assert.True(t, res.ScamDetected)
	assert.True(t, res.ExtractedIntelligence.PhoneNumbers.Has("9876543210"))
}

func TestHandleTurn_NotifyEveryTurn(t *testing.T) {
	f := newFixture(t, HoneypotConfig{NotifyEveryTurn: true})
	ctx := context.Background()

	f.honeypot.HandleTurn(ctx, turnOf("s1", "Hi there"))
	f.honeypot.HandleTurn(ctx, turnOf("s2", upiMessage))

	require.Len(t, f.reporter.notified, 1)
	assert.Equal(t, "s2", f.reporter.notified[0].ID)
}

func TestHandleTurn_DefaultDoesNotNotifyPerTurn(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})

	f.honeypot.HandleTurn(context.Background(), turnOf("s1", upiMessage))

	assert.Empty(t, f.reporter.notified)
}

func TestInspect_FallsBackToMirror(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})
	ctx := context.Background()

	_, err := f.honeypot.Inspect(ctx, "gone")
	assert.ErrorIs(t, err, session.ErrNotFound)

	archived := *models.NewSession("gone", f.clock.Now())
	archived.ScamDetected = true
	require.NoError(t, f.mirror.SaveSession(ctx, archived))

	got, err := f.honeypot.Inspect(ctx, "gone")
	require.NoError(t, err)
	assert.True(t, got.ScamDetected)
}

func TestForceNotify(t *testing.T) {
	f := newFixture(t, HoneypotConfig{})
	ctx := context.Background()

	_, err := f.honeypot.ForceNotify(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)

	f.honeypot.HandleTurn(ctx, turnOf("s1", kycMessage))
	f.reporter.result = models.DeliveryResult{SessionID: "s1", Status: models.DeliveryStatusFailed}
	f.reporter.err = fmt.Errorf("HTTP 500")

	res, err := f.honeypot.ForceNotify(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, res.Status)
	require.Len(t, f.reporter.delivered, 1)
	assert.True(t, f.reporter.delivered[0].ScamDetected)
}

func TestAgentNotes(t *testing.T) {
	sess := *models.NewSession("s1", time.Now())
	assert.Equal(t, NotesNoScam, AgentNotes(sess))

	sess.ScamDetected = true
	sess.Category = models.CategoryOTPFraud
	sess.Confidence = 0.8
	sess.Tactics.Add(ai.FamilyUrgency)
	sess.RedFlags.Add(ai.RedFlagCredentials)
	sess.Signals.Add("otp")
	sess.Signals.Add(ai.SignalPhone)
	sess.Intelligence.UPIIDs.Add("x@ybl")

	notes := AgentNotes(sess)
	assert.Equal(t,
		"Scam Type: OTP_FRAUD | Confidence: 0.80 | Tactics: urgency | Intelligence: 1 UPI IDs | "+
			"Red Flags: Requesting sensitive credentials (OTP/PIN/CVV); legitimate banks never ask for these | "+
			"Keywords: otp",
		notes)
}
