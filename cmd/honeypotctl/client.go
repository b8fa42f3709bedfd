package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"honeypot-lab/internal/app"
	"honeypot-lab/internal/domain/models"
)

// TurnClient sends one turn and returns the honeypot's answer
type TurnClient interface {
	Send(ctx context.Context, turn models.InboundTurn) (models.TurnResult, error)
	Close()
}

// localClient runs turns through an in-process core
type localClient struct {
	core *app.Core
}

func (c *localClient) Send(ctx context.Context, turn models.InboundTurn) (models.TurnResult, error) {
	return c.core.Honeypot.HandleTurn(ctx, turn), nil
}

func (c *localClient) Close() {
	c.core.Close()
}

// remoteClient posts turns to a running API
type remoteClient struct {
	baseURL    string
	apiKey     string
	retries    uint64
	httpClient *http.Client
}

func newRemoteClient(baseURL, apiKey string, timeout time.Duration, retries uint64) *remoteClient {
	return &remoteClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		retries:    retries,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *remoteClient) Send(ctx context.Context, turn models.InboundTurn) (models.TurnResult, error) {
	payload, err := json.Marshal(turn)
	if err != nil {
		return models.TurnResult{}, fmt.Errorf("failed to marshal turn: %w", err)
	}

	var result models.TurnResult
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("server answered %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return json.Unmarshal(body, &result)
	})
	if err != nil {
		return models.TurnResult{}, fmt.Errorf("failed to send turn: %w", err)
	}
	return result, nil
}

func (c *remoteClient) Close() {
	c.httpClient.CloseIdleConnections()
}
