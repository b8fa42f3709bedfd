package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/session"
	"honeypot-lab/pkg/logger"
)

func TestSessionConfig_KeepsDefaultsForUnset(t *testing.T) {
	got := SessionConfig(config.SessionConfig{NotifyAfterIdle: 2 * time.Minute})

	want := session.DefaultConfig()
	want.NotifyAfterIdle = 2 * time.Minute
	assert.Equal(t, want, got)
}

func TestDetectorConfig(t *testing.T) {
	got := DetectorConfig(config.DetectionConfig{Threshold: 5, HistoryBonus: 0})
	assert.Equal(t, 5, got.Threshold)
	assert.Equal(t, 0, got.HistoryBonus)
}

func TestSelectorOptions_ZeroSeedIsRandom(t *testing.T) {
	assert.Empty(t, SelectorOptions(config.PersonaConfig{}))
	assert.Len(t, SelectorOptions(config.PersonaConfig{Seed: 3, MaxAttempts: 4}), 2)
}

func TestCallbackConfig(t *testing.T) {
	got := CallbackConfig(config.CallbackConfig{
		Enabled:    true,
		URL:        "http://evaluator.local/report",
		MaxRetries: 2,
	}, config.AppConfig{Name: "honeypot-lab", Version: "1.2.0"})

	assert.True(t, got.Enabled)
	assert.Equal(t, "http://evaluator.local/report", got.URL)
	assert.Equal(t, uint64(2), got.MaxRetries)
	assert.Equal(t, "honeypot-lab/1.2.0", got.UserAgent)
	assert.Positive(t, got.Workers)
}

func TestNewCore_HandlesTurn(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Persona.Seed = 42

	core, err := NewCore(cfg, logger.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(core.Close)

	res := core.Honeypot.HandleTurn(context.Background(), core.Normalizer.Normalize([]byte(
		`{"sessionId":"c1","message":{"text":"Send Rs 1 to verify your UPI ID scammer@ybl for RBI compliance."}}`,
	)))

	assert.Equal(t, "c1", res.SessionID)
	assert.True(t, res.ScamDetected)
	assert.True(t, res.ExtractedIntelligence.UPIIDs.Has("scammer@ybl"))
	assert.Equal(t, 1, core.Store.Len())
	assert.Equal(t, models.DeliveryStatusSkipped, mustForce(t, core, "c1").Status)
}

func TestCore_RunStopsOnCancel(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	core, err := NewCore(cfg, logger.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(core.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- core.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("core did not stop")
	}
}

func mustForce(t *testing.T, core *Core, id string) models.DeliveryResult {
	t.Helper()
	// the default config has no callback URL, so delivery is skipped
	res, err := core.Honeypot.ForceNotify(context.Background(), id)
	require.Error(t, err)
	return res
}
