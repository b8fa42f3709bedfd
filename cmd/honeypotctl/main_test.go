package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/domain/models"
)

const yamlScript = `
sessionId: replay-kyc
interval: 20s
turns:
  - text: Your KYC document is pending, account will be blocked today.
  - text: Call 9876543210 immediately to update KYC.
  - text: Pay Rs 10 to verify@ybl to complete verification.
`

func TestParseScript_YAML(t *testing.T) {
	s, err := ParseScript([]byte(yamlScript))
	require.NoError(t, err)

	assert.Equal(t, "replay-kyc", s.SessionID)
	assert.Len(t, s.Turns, 3)
	assert.Equal(t, 20*time.Second, s.step())
}

func TestParseScript_JSON(t *testing.T) {
	s, err := ParseScript([]byte("{\n\t\"turns\": [{\"text\": \"hello\"}]\n}"))
	require.NoError(t, err)

	assert.Len(t, s.Turns, 1)
	assert.Contains(t, s.SessionID, "replay-")
	assert.Zero(t, s.step())
}

func TestParseScript_Rejects(t *testing.T) {
	_, err := ParseScript([]byte("sessionId: x\n"))
	assert.Error(t, err)

	_, err = ParseScript([]byte("turns:\n  - text: ok\n  - text: \"  \"\n"))
	assert.ErrorContains(t, err, "turn 2")

	_, err = ParseScript([]byte("{not json"))
	assert.Error(t, err)
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlScript), 0o600))

	s, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, "replay-kyc", s.SessionID)

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

type recordingClient struct {
	turns []models.InboundTurn
}

func (c *recordingClient) Send(_ context.Context, turn models.InboundTurn) (models.TurnResult, error) {
	c.turns = append(c.turns, turn)
	return models.TurnResult{
		SessionID:              turn.SessionID,
		Reply:                  "reply " + turn.Message.Text,
		TotalMessagesExchanged: 2 * len(c.turns),
	}, nil
}

func (c *recordingClient) Close() {}

func TestReplay_CarriesHistory(t *testing.T) {
	s, err := ParseScript([]byte(yamlScript))
	require.NoError(t, err)

	client := &recordingClient{}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var seen int
	steps, err := Replay(context.Background(), client, s, start, func(ReplayStep) { seen++ })
	require.NoError(t, err)

	require.Len(t, steps, 3)
	assert.Equal(t, 3, seen)
	require.Len(t, client.turns, 3)

	assert.Empty(t, client.turns[0].History)
	assert.Len(t, client.turns[1].History, 2)
	third := client.turns[2]
	require.Len(t, third.History, 4)
	assert.Equal(t, senderScammer, third.History[0].Sender)
	assert.Equal(t, senderAgent, third.History[1].Sender)
	assert.Equal(t, "reply "+s.Turns[0].Text, third.History[1].Text)

	// two messages per turn, spaced by the script interval
	assert.Equal(t, start.UnixMilli(), client.turns[0].Message.Timestamp)
	assert.Equal(t, start.Add(40*time.Second).UnixMilli(), client.turns[1].Message.Timestamp)
	assert.Equal(t, "replay-kyc", third.SessionID)
}

func TestRemoteClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))

		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var turn models.InboundTurn
		require.NoError(t, json.NewDecoder(r.Body).Decode(&turn))
		_ = json.NewEncoder(w).Encode(models.TurnResult{SessionID: turn.SessionID, Status: "success", Reply: "ok"})
	}))
	defer srv.Close()

	c := newRemoteClient(srv.URL+"/", "k", 5*time.Second, 2)
	defer c.Close()

	res, err := c.Send(context.Background(), models.InboundTurn{SessionID: "r1", Message: models.Message{Text: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "r1", res.SessionID)
	assert.Equal(t, "ok", res.Reply)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRemoteClient_NoRetryOnUnauthorized(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid API key"}`))
	}))
	defer srv.Close()

	c := newRemoteClient(srv.URL, "", 5*time.Second, 3)
	_, err := c.Send(context.Background(), models.InboundTurn{SessionID: "r1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), hits.Load())
}

func TestWatchSubscription(t *testing.T) {
	kindsFlag = []string{"upi_id", " phone "}
	sessionFlag = "s9"
	scamOnly = true
	t.Cleanup(func() {
		kindsFlag, sessionFlag, scamOnly = nil, "", false
	})

	sub := watchSubscription()
	assert.Equal(t, []models.IndicatorKind{models.IndicatorUPI, models.IndicatorPhone}, sub.Kinds)
	assert.Equal(t, "s9", sub.SessionID)
	assert.True(t, sub.ScamOnly)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestAnalyzeCommand_Local(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"analyze", "--session", "cli-kyc", "Your bank account has been compromised. Call 9876543210 immediately to update KYC."})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		sessionFlag = ""
	})

	require.NoError(t, rootCmd.Execute())

	var res models.TurnResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "cli-kyc", res.SessionID)
	assert.True(t, res.ScamDetected)
	assert.True(t, res.ExtractedIntelligence.PhoneNumbers.Has("9876543210"))
}
