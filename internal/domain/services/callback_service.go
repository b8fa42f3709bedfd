package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/session"
	"honeypot-lab/pkg/logger"
)

// ErrCallbackDisabled is returned by Deliver when no endpoint is configured
var ErrCallbackDisabled = errors.New("callback delivery is disabled")

// SessionTracker is the part of the session store the callback service needs
type SessionTracker interface {
	MarkNotified(id string) error
	Engagement(s models.Session) models.EngagementMetrics
}

// CallbackConfig contains configuration for the callback service
type CallbackConfig struct {
	Enabled       bool
	URL           string
	Timeout       time.Duration
	MaxRetries    uint64
	RetryInterval time.Duration
	Workers       int
	QueueSize     int
	UserAgent     string
}

// DefaultCallbackConfig returns sensible defaults
func DefaultCallbackConfig() CallbackConfig {
	return CallbackConfig{
		Enabled:       true,
		Timeout:       10 * time.Second,
		MaxRetries:    0,
		RetryInterval: 2 * time.Second,
		Workers:       4,
		QueueSize:     256,
		UserAgent:     "honeypot-lab/1.0",
	}
}

// CallbackStats counts delivery outcomes since start
type CallbackStats struct {
	Queued    int64 `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// CallbackService delivers final session reports to the evaluator endpoint.
// Notify never blocks; deliveries run on a small worker pool.
type CallbackService struct {
	config     CallbackConfig
	httpClient *http.Client
	logger     *logger.Logger

	mu      sync.RWMutex
	tracker SessionTracker
	stopped bool

	queue  chan models.Session
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewCallbackService creates a new callback service and starts its workers
func NewCallbackService(log *logger.Logger, cfg CallbackConfig) *CallbackService {
	defaults := DefaultCallbackConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaults.RetryInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &CallbackService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: log.WithComponent("callback"),
		queue:  make(chan models.Session, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if svc.Enabled() {
		svc.startWorkers()
	} else {
		svc.logger.Warn().Msg("callback URL not configured, final reports will not be delivered")
	}
	return svc
}

// SetSessionTracker wires the store that is told about confirmed deliveries
func (s *CallbackService) SetSessionTracker(t SessionTracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker = t
}

// Enabled reports whether deliveries are attempted at all
func (s *CallbackService) Enabled() bool {
	return s.config.Enabled && s.config.URL != ""
}

func (s *CallbackService) startWorkers() {
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.deliveryWorker(i)
	}
	s.logger.Info().
		Int("workers", s.config.Workers).
		Str("url", s.config.URL).
		Msg("callback delivery workers started")
}

func (s *CallbackService) deliveryWorker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug().Int("worker", id).Msg("callback worker stopping")
			return
		case sess := <-s.queue:
			// failures are logged inside Deliver
			_, _ = s.Deliver(s.ctx, sess)
		}
	}
}

// Notify queues a final report for delivery without waiting for it. A full
// queue drops the report; the session stays unreported and is retried on
// eviction.
func (s *CallbackService) Notify(sess models.Session) {
	if !s.Enabled() {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}

	select {
	case s.queue <- sess:
		s.queued.Add(1)
	default:
		s.dropped.Add(1)
		s.logger.Warn().
			Str("session_id", sess.ID).
			Int("queue_size", s.config.QueueSize).
			Msg("callback queue full, report dropped")
	}
}

// BuildReport assembles the evaluator payload for a session
func (s *CallbackService) BuildReport(sess models.Session) models.FinalReport {
	s.mu.RLock()
	tracker := s.tracker
	s.mu.RUnlock()

	var metrics models.EngagementMetrics
	if tracker != nil {
		metrics = tracker.Engagement(sess)
	} else {
		metrics = session.Engagement(sess, time.Now(), session.DefaultConfig().SecondsPerTurn)
	}

	return models.FinalReport{
		SessionID:                 sess.ID,
		ScamDetected:              sess.ScamDetected,
		ScamType:                  models.ScamCategory(sess.Category.String()),
		ConfidenceLevel:           sess.Confidence,
		TotalMessagesExchanged:    metrics.TotalMessagesExchanged,
		EngagementDurationSeconds: metrics.EngagementDurationSeconds,
		ExtractedIntelligence:     sess.Intelligence.Clone(),
		EngagementMetrics:         metrics,
		AgentNotes:                AgentNotes(sess),
	}
}

// Deliver posts the session's final report and, on a 2xx answer, marks the
// session notified. Attempts beyond the first are made only when MaxRetries
// is set, and only for transport errors, 429 and 5xx answers.
func (s *CallbackService) Deliver(ctx context.Context, sess models.Session) (models.DeliveryResult, error) {
	result := models.DeliveryResult{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		Status:    models.DeliveryStatusSkipped,
	}
	if !s.Enabled() {
		return result, ErrCallbackDisabled
	}

	payload, err := json.Marshal(s.BuildReport(sess))
	if err != nil {
		result.Status = models.DeliveryStatusFailed
		result.Error = err.Error()
		s.failed.Add(1)
		return result, fmt.Errorf("failed to marshal report: %w", err)
	}

	start := time.Now()
	b := retry.NewConstant(s.config.RetryInterval)
	err = retry.Do(ctx, retry.WithMaxRetries(s.config.MaxRetries, b), func(ctx context.Context) error {
		result.Attempts++
		status, err := s.post(ctx, result.ID, payload)
		result.StatusCode = status
		if err != nil {
			if retryable(status) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	result.Duration = time.Since(start)

	if err != nil {
		result.Status = models.DeliveryStatusFailed
		result.Error = err.Error()
		s.failed.Add(1)
		s.logger.Warn().
			Err(err).
			Str("session_id", sess.ID).
			Str("delivery_id", result.ID).
			Int("attempts", result.Attempts).
			Dur("duration", result.Duration).
			Msg("callback delivery failed")
		return result, fmt.Errorf("failed to deliver report for session %s: %w", sess.ID, err)
	}

	result.Status = models.DeliveryStatusDelivered
	s.delivered.Add(1)
	s.logger.Info().
		Str("session_id", sess.ID).
		Str("delivery_id", result.ID).
		Int("status", result.StatusCode).
		Int("indicators", sess.Intelligence.Total()).
		Dur("duration", result.Duration).
		Msg("callback delivered")

	s.mu.RLock()
	tracker := s.tracker
	s.mu.RUnlock()
	if tracker != nil {
		if err := tracker.MarkNotified(sess.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
			s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to mark session notified")
		}
	}
	return result, nil
}

// post sends one attempt. A zero status means the request never got an answer.
func (s *CallbackService) post(ctx context.Context, deliveryID string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("X-Delivery-ID", deliveryID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return resp.StatusCode, nil
}

func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

// Stats returns delivery counters
func (s *CallbackService) Stats() CallbackStats {
	return CallbackStats{
		Queued:    s.queued.Load(),
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// Stop stops the workers. Reports still queued are abandoned.
func (s *CallbackService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("callback service stopped")
}

var _ session.Notifier = (*CallbackService)(nil)
