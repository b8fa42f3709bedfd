// Package app assembles the honeypot services from configuration.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/internal/domain/services/ai"
	"honeypot-lab/internal/domain/services/persona"
	"honeypot-lab/internal/domain/services/session"
	"honeypot-lab/pkg/logger"
)

// Core holds the in-process services every entry point needs
type Core struct {
	Honeypot   *services.Honeypot
	Normalizer *services.Normalizer
	Store      *session.Store
	Callback   *services.CallbackService
	Pipeline   *services.IntelPipeline

	logger *logger.Logger
}

// NewCore builds the services described by cfg. mirror may be nil.
func NewCore(cfg *config.Config, log *logger.Logger, mirror services.SessionMirror) (*Core, error) {
	corpus, err := persona.DefaultCorpus()
	if err != nil {
		return nil, fmt.Errorf("failed to load reply corpus: %w", err)
	}

	callback := services.NewCallbackService(log, CallbackConfig(cfg.Callback, cfg.App))
	pipeline := services.NewIntelPipeline(log, nil, services.IntelPipelineConfig{
		BufferSize: cfg.Session.EventBuffer,
	})

	store := session.NewStore(log, SessionConfig(cfg.Session),
		session.WithNotifier(callback),
		session.WithEvents(pipeline),
	)
	callback.SetSessionTracker(store)
	pipeline.SetEstimator(store)
	if mirror != nil {
		pipeline.SetMirror(mirror)
	}

	hp := services.NewHoneypot(log, services.HoneypotDeps{
		Extractor: ai.NewEntityExtractor(log),
		Detector:  ai.NewScamDetector(log, DetectorConfig(cfg.Detection)),
		Selector:  persona.NewSelector(log, corpus, SelectorOptions(cfg.Persona)...),
		Store:     store,
		Reporter:  callback,
		Mirror:    mirror,
	}, services.HoneypotConfig{
		NotifyEveryTurn: cfg.Callback.NotifyEveryTurn,
	})

	return &Core{
		Honeypot:   hp,
		Normalizer: services.NewNormalizer(log),
		Store:      store,
		Callback:   callback,
		Pipeline:   pipeline,
		logger:     log.WithComponent("app"),
	}, nil
}

// Run drives the sweep loop and the intel pipeline until ctx is done
func (c *Core) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Store.Start(ctx) })
	g.Go(func() error { return c.Pipeline.Run(ctx) })
	return g.Wait()
}

// Close stops background delivery. Queued reports that have not started are
// abandoned.
func (c *Core) Close() {
	c.Store.Stop()
	c.Callback.Stop()
	c.logger.Info().Msg("core services stopped")
}

// SessionConfig maps configuration onto store settings, keeping defaults for
// unset values
func SessionConfig(cfg config.SessionConfig) session.Config {
	out := session.DefaultConfig()
	if cfg.NotifyAfterIdle > 0 {
		out.NotifyAfterIdle = cfg.NotifyAfterIdle
	}
	if cfg.EvictAfterIdle > 0 {
		out.EvictAfterIdle = cfg.EvictAfterIdle
	}
	if cfg.SweepInterval > 0 {
		out.SweepInterval = cfg.SweepInterval
	}
	if cfg.SecondsPerTurn > 0 {
		out.SecondsPerTurn = cfg.SecondsPerTurn
	}
	if cfg.ReplyMemory > 0 {
		out.ReplyMemory = cfg.ReplyMemory
	}
	if cfg.MaxNotes > 0 {
		out.MaxNotes = cfg.MaxNotes
	}
	return out
}

// DetectorConfig maps configuration onto classifier settings
func DetectorConfig(cfg config.DetectionConfig) ai.ScamDetectorConfig {
	out := ai.DefaultScamDetectorConfig()
	if cfg.Threshold > 0 {
		out.Threshold = cfg.Threshold
	}
	if cfg.HistoryBonus >= 0 {
		out.HistoryBonus = cfg.HistoryBonus
	}
	return out
}

// SelectorOptions maps configuration onto reply selector options. A zero seed
// leaves the selector randomly seeded.
func SelectorOptions(cfg config.PersonaConfig) []persona.Option {
	var opts []persona.Option
	if cfg.Seed != 0 {
		opts = append(opts, persona.WithSeed(cfg.Seed))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, persona.WithMaxAttempts(cfg.MaxAttempts))
	}
	if cfg.OverlapThreshold > 0 {
		opts = append(opts, persona.WithOverlapThreshold(cfg.OverlapThreshold))
	}
	if cfg.RecentWindow > 0 {
		opts = append(opts, persona.WithRecentWindow(cfg.RecentWindow))
	}
	return opts
}

// CallbackConfig maps configuration onto the delivery service settings
func CallbackConfig(cfg config.CallbackConfig, appCfg config.AppConfig) services.CallbackConfig {
	out := services.DefaultCallbackConfig()
	out.Enabled = cfg.Enabled
	out.URL = cfg.URL
	out.MaxRetries = cfg.MaxRetries
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	if cfg.RetryInterval > 0 {
		out.RetryInterval = cfg.RetryInterval
	}
	if cfg.Workers > 0 {
		out.Workers = cfg.Workers
	}
	if cfg.QueueSize > 0 {
		out.QueueSize = cfg.QueueSize
	}
	if appCfg.Name != "" && appCfg.Version != "" {
		out.UserAgent = appCfg.Name + "/" + appCfg.Version
	}
	return out
}
