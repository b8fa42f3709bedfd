package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/session"
	"honeypot-lab/pkg/logger"
)

// SessionMirror keeps a copy of sessions outside process memory
type SessionMirror interface {
	// SaveSession writes the latest snapshot of a session
	SaveSession(ctx context.Context, s models.Session) error

	// LoadSession reads a snapshot back; it returns session.ErrNotFound when absent
	LoadSession(ctx context.Context, id string) (models.Session, error)
}

// IntelPublisher announces intelligence to downstream consumers
type IntelPublisher interface {
	// PublishIntel announces indicators a session has just surfaced
	PublishIntel(ctx context.Context, s models.Session, added models.IndicatorSet) error

	// PublishFinalized announces a session leaving memory
	PublishFinalized(ctx context.Context, s models.Session, metrics models.EngagementMetrics) error
}

// SessionArchive stores finished sessions
type SessionArchive interface {
	// Archive upserts the final state of a session
	Archive(ctx context.Context, s models.Session, metrics models.EngagementMetrics) error
}

// IntelGraph links sessions to the indicators they surfaced
type IntelGraph interface {
	// LinkIndicators records that a session surfaced the given indicators
	LinkIndicators(ctx context.Context, s models.Session, added models.IndicatorSet) error
}

// EngagementEstimator computes engagement metrics for a session copy
type EngagementEstimator interface {
	Engagement(s models.Session) models.EngagementMetrics
}

// IntelPipelineConfig contains configuration for the intel pipeline
type IntelPipelineConfig struct {
	BufferSize  int
	SinkTimeout time.Duration
}

// DefaultIntelPipelineConfig returns sensible defaults
func DefaultIntelPipelineConfig() IntelPipelineConfig {
	return IntelPipelineConfig{
		BufferSize:  1024,
		SinkTimeout: 5 * time.Second,
	}
}

// IntelPipelineStats counts processed events
type IntelPipelineStats struct {
	Processed  int64 `json:"processed"`
	Dropped    int64 `json:"dropped"`
	SinkErrors int64 `json:"sink_errors"`
}

// IntelPipeline fans session change events out to the mirror, publisher,
// archive and graph sinks. Publish never blocks the turn path; events that do
// not fit in the buffer are dropped.
type IntelPipeline struct {
	config IntelPipelineConfig
	logger *logger.Logger
	events chan session.Event

	mu        sync.RWMutex
	estimator EngagementEstimator
	mirror    SessionMirror
	publisher IntelPublisher
	archive   SessionArchive
	graph     IntelGraph

	processed  atomic.Int64
	dropped    atomic.Int64
	sinkErrors atomic.Int64
}

// NewIntelPipeline creates a new IntelPipeline
func NewIntelPipeline(log *logger.Logger, estimator EngagementEstimator, cfg IntelPipelineConfig) *IntelPipeline {
	defaults := DefaultIntelPipelineConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaults.SinkTimeout
	}
	return &IntelPipeline{
		config:    cfg,
		estimator: estimator,
		logger:    log.WithComponent("intel-pipeline"),
		events:    make(chan session.Event, cfg.BufferSize),
	}
}

// SetEstimator sets how engagement is computed for finalized sessions
func (p *IntelPipeline) SetEstimator(e EngagementEstimator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.estimator = e
}

// SetMirror sets the session mirror sink
func (p *IntelPipeline) SetMirror(m SessionMirror) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mirror = m
	p.logger.Info().Msg("session mirror configured")
}

// SetPublisher sets the event publisher sink
func (p *IntelPipeline) SetPublisher(pub IntelPublisher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publisher = pub
	p.logger.Info().Msg("intel publisher configured")
}

// SetArchive sets the session archive sink
func (p *IntelPipeline) SetArchive(a SessionArchive) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.archive = a
	p.logger.Info().Msg("session archive configured")
}

// SetGraph sets the indicator graph sink
func (p *IntelPipeline) SetGraph(g IntelGraph) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graph = g
	p.logger.Info().Msg("intel graph configured")
}

// Publish queues a store event. It implements session.EventSink.
func (p *IntelPipeline) Publish(e session.Event) {
	select {
	case p.events <- e:
	default:
		p.dropped.Add(1)
		p.logger.Warn().
			Str("session_id", e.Session.ID).
			Str("type", string(e.Type)).
			Msg("intel pipeline buffer full, event dropped")
	}
}

// Run processes events until ctx is done, then drains what is already queued
func (p *IntelPipeline) Run(ctx context.Context) error {
	p.logger.Info().Int("buffer", p.config.BufferSize).Msg("intel pipeline started")

	for {
		select {
		case <-ctx.Done():
			p.drain()
			p.logger.Info().
				Int64("processed", p.processed.Load()).
				Int64("dropped", p.dropped.Load()).
				Msg("intel pipeline stopped")
			return nil
		case e := <-p.events:
			p.Process(ctx, e)
		}
	}
}

func (p *IntelPipeline) drain() {
	for {
		select {
		case e := <-p.events:
			p.Process(context.Background(), e)
		default:
			return
		}
	}
}

// Process hands one event to every configured sink concurrently. Sink errors
// are logged and counted; they never fail the event.
func (p *IntelPipeline) Process(ctx context.Context, e session.Event) {
	p.mu.RLock()
	mirror, publisher, archive, graph := p.mirror, p.publisher, p.archive, p.graph
	p.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.SinkTimeout)
	defer cancel()

	var g errgroup.Group
	run := func(sink string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				p.sinkErrors.Add(1)
				p.logger.Warn().
					Err(err).
					Str("sink", sink).
					Str("session_id", e.Session.ID).
					Str("type", string(e.Type)).
					Msg("intel sink failed")
			}
			return nil
		})
	}

	if mirror != nil {
		run("mirror", func() error { return mirror.SaveSession(ctx, e.Session) })
	}

	switch e.Type {
	case session.EventUpdated:
		if e.HasNewIntel() {
			if publisher != nil {
				run("publisher", func() error { return publisher.PublishIntel(ctx, e.Session, e.Added) })
			}
			if graph != nil {
				run("graph", func() error { return graph.LinkIndicators(ctx, e.Session, e.Added) })
			}
		}
	case session.EventEvicted:
		metrics := p.metrics(e.Session)
		if archive != nil {
			run("archive", func() error { return archive.Archive(ctx, e.Session, metrics) })
		}
		if publisher != nil {
			run("publisher", func() error { return publisher.PublishFinalized(ctx, e.Session, metrics) })
		}
	default:
		p.logger.Debug().Str("type", string(e.Type)).Msg("ignoring unknown event type")
	}

	_ = g.Wait()
	p.processed.Add(1)
}

func (p *IntelPipeline) metrics(s models.Session) models.EngagementMetrics {
	p.mu.RLock()
	estimator := p.estimator
	p.mu.RUnlock()
	if estimator != nil {
		return estimator.Engagement(s)
	}
	return session.Engagement(s, time.Now(), session.DefaultConfig().SecondsPerTurn)
}

// Stats returns event counters
func (p *IntelPipeline) Stats() IntelPipelineStats {
	return IntelPipelineStats{
		Processed:  p.processed.Load(),
		Dropped:    p.dropped.Load(),
		SinkErrors: p.sinkErrors.Load(),
	}
}

var _ session.EventSink = (*IntelPipeline)(nil)
