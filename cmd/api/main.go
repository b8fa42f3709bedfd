package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"honeypot-lab/internal/api"
	"honeypot-lab/internal/api/handlers"
	apimiddleware "honeypot-lab/internal/api/middleware"
	"honeypot-lab/internal/app"
	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/services"
	grpchealth "honeypot-lab/internal/grpc/health"
	"honeypot-lab/internal/infrastructure/cache"
	"honeypot-lab/internal/infrastructure/database"
	"honeypot-lab/internal/infrastructure/database/repository"
	"honeypot-lab/internal/infrastructure/graph"
	"honeypot-lab/internal/streaming"
	"honeypot-lab/pkg/logger"
)

// infra holds the optional external backends. Any field may be nil.
type infra struct {
	redis    *cache.RedisCache
	db       *database.PostgresDB
	neo4j    *graph.Neo4jClient
	nats     *streaming.NATSPublisher
	archive  *repository.SessionArchiveRepository
	intel    *graph.IntelGraphRepository
	checks   map[string]handlers.Check
	grpcDeps map[string]grpchealth.Check
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var log *logger.Logger
	if cfg.App.Environment == "production" {
		log = logger.NewProduction()
	} else {
		log = logger.FromConfig(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.TimeFormat)
	}
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting honeypot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("honeypot stopped with error")
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	backends := initInfrastructure(ctx, cfg, log)
	defer backends.close(log)

	// interfaces stay nil unless the backend connected
	var mirror services.SessionMirror
	if backends.redis != nil {
		mirror = backends.redis
	}
	core, err := app.NewCore(cfg, log, mirror)
	if err != nil {
		return err
	}
	defer core.Close()

	if backends.nats != nil {
		core.Pipeline.SetPublisher(backends.nats)
	}
	if backends.archive != nil {
		core.Pipeline.SetArchive(backends.archive)
	}
	if backends.intel != nil {
		core.Pipeline.SetGraph(backends.intel)
	}

	deps := handlers.Dependencies{
		Honeypot:   core.Honeypot,
		Normalizer: core.Normalizer,
		Store:      core.Store,
		Callback:   core.Callback,
		Pipeline:   core.Pipeline,
		Checks:     backends.checks,
		Version:    cfg.App.Version,
		Logger:     log,
	}
	if backends.intel != nil {
		deps.Correlator = backends.intel
	}
	if backends.archive != nil {
		deps.Archive = backends.archive
	}

	var limiter apimiddleware.RateLimitChecker
	if backends.redis != nil {
		limiter = backends.redis
	} else if cfg.RateLimit.Enabled {
		log.Warn().Msg("rate limiting needs redis, requests will not be limited")
	}

	router := api.NewRouter(*cfg, handlers.NewHandlers(deps), limiter, log)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	grpcServer := grpchealth.NewServer(backends.grpcDeps, log)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return core.Run(ctx) })

	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if cfg.Server.GRPCPort <= 0 {
			return nil
		}
		return grpcServer.Serve(ctx, cfg.Server.GRPCPort)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// initInfrastructure connects every enabled backend. A backend that cannot be
// reached is logged and skipped; the honeypot runs on memory alone.
func initInfrastructure(ctx context.Context, cfg *config.Config, log *logger.Logger) *infra {
	in := &infra{
		checks:   make(map[string]handlers.Check),
		grpcDeps: make(map[string]grpchealth.Check),
	}
	addCheck := func(name string, fn func(context.Context) error) {
		in.checks[name] = fn
		in.grpcDeps[name] = fn
	}

	if cfg.Redis.Enabled {
		rc, err := cache.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without session mirror")
		} else {
			in.redis = rc
			addCheck("redis", rc.Ping)
		}
	}

	if cfg.Database.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to PostgreSQL, continuing without archive")
		} else if err := db.EnsureSchema(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to apply archive schema, continuing without archive")
			db.Close()
		} else {
			in.db = db
			in.archive = repository.NewSessionArchiveRepository(db)
			addCheck("postgres", db.Ping)
		}
	}

	if cfg.Neo4j.Enabled {
		client, err := graph.NewNeo4jClient(ctx, cfg.Neo4j, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Neo4j, graph features disabled")
		} else {
			in.neo4j = client
			in.intel = graph.NewIntelGraphRepository(client, log)
			addCheck("neo4j", client.Health)
		}
	}

	if cfg.NATS.Enabled {
		pub, err := streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing without intel stream")
		} else {
			in.nats = pub
			addCheck("nats", func(context.Context) error {
				if !pub.IsConnected() {
					return streaming.ErrNotConnected
				}
				return nil
			})
		}
	}

	return in
}

func (in *infra) close(log *logger.Logger) {
	if in.nats != nil {
		in.nats.Close()
	}
	if in.neo4j != nil {
		if err := in.neo4j.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to close Neo4j driver")
		}
	}
	if in.db != nil {
		in.db.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close Redis client")
		}
	}
}
