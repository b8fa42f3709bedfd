package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"honeypot-lab/internal/domain/models"
)

const (
	senderScammer = "scammer"
	senderAgent   = "user"
)

// Script is a scripted scammer conversation. YAML and JSON are both accepted.
type Script struct {
	SessionID string       `yaml:"sessionId" json:"sessionId"`
	Channel   string       `yaml:"channel" json:"channel"`
	Language  string       `yaml:"language" json:"language"`
	Interval  string       `yaml:"interval" json:"interval"`
	Turns     []ScriptTurn `yaml:"turns" json:"turns"`
}

// ScriptTurn is one scammer message
type ScriptTurn struct {
	Text string `yaml:"text" json:"text"`
}

// LoadScript reads a script file
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML or JSON script
func ParseScript(data []byte) (*Script, error) {
	var s Script
	var err error
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &s)
	} else {
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(s.Turns) == 0 {
		return nil, errors.New("script has no turns")
	}
	for i, t := range s.Turns {
		if strings.TrimSpace(t.Text) == "" {
			return nil, fmt.Errorf("turn %d has no text", i+1)
		}
	}
	if s.SessionID == "" {
		s.SessionID = "replay-" + uuid.NewString()
	}
	return &s, nil
}

// step returns the spacing between simulated messages
func (s *Script) step() time.Duration {
	if s.Interval == "" {
		return 0
	}
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ReplayStep is the outcome of one scripted turn
type ReplayStep struct {
	Turn   int               `json:"turn"`
	Text   string            `json:"text"`
	Result models.TurnResult `json:"result"`
}

// Replay plays the script turn by turn, carrying the growing conversation as
// history the way a chat platform would. onStep may be nil.
func Replay(ctx context.Context, client TurnClient, s *Script, start time.Time, onStep func(ReplayStep)) ([]ReplayStep, error) {
	history := make([]models.Message, 0, len(s.Turns)*2)
	steps := make([]ReplayStep, 0, len(s.Turns))
	at := start
	step := s.step()

	for i, t := range s.Turns {
		msg := models.Message{Sender: senderScammer, Text: t.Text, Timestamp: at.UnixMilli()}
		turn := models.InboundTurn{
			SessionID: s.SessionID,
			Message:   msg,
			History:   append([]models.Message{}, history...),
			Channel:   s.Channel,
			Language:  s.Language,
		}

		res, err := client.Send(ctx, turn)
		if err != nil {
			return steps, fmt.Errorf("turn %d: %w", i+1, err)
		}

		rec := ReplayStep{Turn: i + 1, Text: t.Text, Result: res}
		steps = append(steps, rec)
		if onStep != nil {
			onStep(rec)
		}

		at = at.Add(step)
		history = append(history, msg, models.Message{Sender: senderAgent, Text: res.Reply, Timestamp: at.UnixMilli()})
		at = at.Add(step)
	}
	return steps, nil
}
