package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sharpmind/trainer-hub/config"
	"github.com/sharpmind/trainer-hub/internal/application/command"
	"github.com/sharpmind/trainer-hub/internal/application/eventhandler"
	"github.com/sharpmind/trainer-hub/internal/application/lifecycle"
	"github.com/sharpmind/trainer-hub/internal/application/query"
	"github.com/sharpmind/trainer-hub/internal/domain/assessment"
	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/external/generator"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/messaging"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/persistence/postgres"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/persistence/redis"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/scheduler"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/sharpmind/trainer-hub/internal/interface/http"
	"github.com/sharpmind/trainer-hub/internal/interface/http/handlers"
	"github.com/sharpmind/trainer-hub/pkg/logger"
	"github.com/sharpmind/trainer-hub/pkg/timeutil"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the session manager and background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cmd)
	},
}

// closableBus is an event bus owned by the process.
type closableBus interface {
	shared.EventBus
	Close() error
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Generator.BaseURL == "" {
		return errors.New("GENERATOR_URL is required")
	}

	log := setupLogger(cfg)
	log.Info("starting trainer-hub",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	table, err := cfg.Training.LoadCriteriaTable()
	if err != nil {
		return fmt.Errorf("failed to load promotion criteria: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	sessionRepo := postgres.NewSessionRepository(dbConn)
	directory := postgres.NewDirectoryRepository(dbConn)
	decisions := postgres.NewDecisionRepository(dbConn)

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewPingCheck(dbConn))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS & EVENT BUS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		sessions training.SessionRepository = sessionRepo
		adaptive training.AdaptiveProfileStore
		bus      closableBus
	)

	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, caching and cross-instance events disabled", "error", err)
		} else {
			defer cache.Close()
			sessions = redis.NewSessionCache(sessionRepo, cache, log)
			adaptive = redis.NewAdaptiveProfileStore(cache)
			health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))

			redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
				Client:         redis.NewPubSubClient(cache),
				Channel:        cfg.Redis.EventChannel,
				LocalBusConfig: messaging.DefaultInMemoryEventBusConfig(),
				Logger:         log,
			})
			if err != nil {
				return fmt.Errorf("failed to start event bus: %w", err)
			}
			bus = redisBus
			log.Info("Redis connection established")
		}
	}
	if bus == nil {
		busCfg := messaging.DefaultInMemoryEventBusConfig()
		busCfg.Logger = log
		bus = messaging.NewInMemoryEventBus(busCfg)
	}
	defer bus.Close()

	dispatcher := messaging.NewDispatcher(messaging.DispatcherConfig{
		Bus:                 bus,
		Timeout:             cfg.Training.EffectTimeout,
		DeadLetterQueueSize: 1000,
		Logger:              log,
	})
	mirror := eventhandler.NewTrainerMirrorHandler(bus, log)
	if err := dispatcher.Register("trainer_mirror", mirror.Handle); err != nil {
		return fmt.Errorf("failed to register trainer mirror: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. GENERATOR, SCORING & PROMOTION
	// ─────────────────────────────────────────────────────────────────────────
	genClient := generator.NewClient(generatorConfig(cfg, log))
	health.AddOptionalCheck("generator", handlers.NewGeneratorCheck(genClient))

	scorer, err := assessment.NewScorer(assessment.DefaultConfig())
	if err != nil {
		return fmt.Errorf("invalid scoring config: %w", err)
	}
	registry := promotion.NewRegistry(table)
	evaluator := promotion.NewEvaluator(registry, promotion.DefaultEvaluatorConfig())
	clock := timeutil.Real()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SESSION LIFECYCLE MANAGER
	// ─────────────────────────────────────────────────────────────────────────
	manager := lifecycle.NewManager(lifecycle.Dependencies{
		Generator: genClient,
		Sessions:  sessions,
		Directory: directory,
		Adaptive:  adaptive,
		Decisions: decisions,
		Executor:  directory,
		Publisher: bus,
		Scorer:    scorer,
		Evaluator: evaluator,
		Features:  cfg.Features,
		Clock:     clock,
		Logger:    log,
	}, lifecycle.Config{
		AutoSaveInterval:   cfg.Training.AutoSaveInterval,
		DefaultDuration:    cfg.Training.DefaultDuration,
		CompletedRetention: cfg.Training.CompletedRetention,
		EffectTimeout:      cfg.Training.EffectTimeout,
		MaxExercises:       cfg.Training.MaxExercises,
	})
	defer manager.Close()

	restored, err := manager.Restore(ctx)
	if err != nil {
		log.Error("failed to restore unfinished sessions", "error", err)
	} else {
		log.Info("unfinished sessions restored", "count", restored)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := setupScheduler(cfg, manager, decisions, bus, clock, log)
	if err != nil {
		return err
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	var auth *handlers.APIKeyAuth
	if len(cfg.HTTP.APIKeyHashes) > 0 {
		auth, err = handlers.NewAPIKeyAuth(cfg.HTTP.APIKeyHeader, cfg.HTTP.APIKeyHashes)
		if err != nil {
			return fmt.Errorf("invalid API key configuration: %w", err)
		}
	} else {
		log.Warn("HTTP_API_KEY_HASHES is empty, API authentication disabled")
	}

	// Criteria replacement is only exposed behind API keys.
	var criteriaAdmin httpapi.CriteriaAdmin
	if auth != nil {
		criteriaAdmin = command.NewReplaceCriteriaHandler(registry, config.ParseCriteriaDocument, log)
	}

	httpLogger := logger.New(logger.Options{
		Level: logger.ParseLevel(cfg.Observability.LogLevel),
	})
	httpServer := httpapi.NewServer(httpConfig(cfg), httpapi.Dependencies{
		Sessions:      manager,
		Reviews:       command.NewReviewPromotionHandler(decisions, directory, bus, clock, log),
		Annotator:     command.NewAnnotateSessionHandler(sessions, clock),
		Analysis:      query.NewGetSessionAnalysisHandler(sessions, scorer),
		Decisions:     query.NewPromotionDecisionsHandler(decisions),
		Criteria:      query.NewGetCriteriaHandler(registry),
		CriteriaAdmin: criteriaAdmin,
		Jobs:          sched,
		DeadLetters:   dispatcher,
		Health:        health,
		Auth:          auth,
		Logger:        httpLogger,
	})
	errCh := httpServer.StartAsync()

	log.Info("trainer-hub is running",
		"http_address", httpConfig(cfg).Address(),
		"scheduler", cfg.Scheduler.Enabled,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	// 1. Stop accepting requests
	log.Info("stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	// 2. Let running jobs finish
	if sched.IsRunning() {
		log.Info("stopping scheduler...")
		if err := sched.Stop(); err != nil {
			log.Error("failed to stop scheduler", "error", err)
			shutdownErr = err
		}
	}

	// 3. Timers stop via manager.Close; live sessions stay persisted for Restore.

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}

func setupScheduler(
	cfg *config.Config,
	manager *lifecycle.Manager,
	decisions promotion.DecisionRepository,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	log *slog.Logger,
) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Clock:    clock,
		Timezone: cfg.App.Location,
	})
	sched.OnJobError(func(jobName string, err error) {
		log.Error("scheduled job failed", "job", jobName, "error", err)
	})

	cleanupSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.CleanupSchedule)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_CLEANUP_SCHEDULE: %w", err)
	}
	cleanup := jobs.NewCleanupInactiveJob(manager, clock, log, jobs.CleanupInactiveConfig{
		Threshold: cfg.Scheduler.InactiveThreshold,
		Timeout:   cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(cleanup, cleanupSchedule); err != nil {
		return nil, err
	}

	reminderSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.ReminderSchedule)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_REMINDER_SCHEDULE: %w", err)
	}
	reminder := jobs.NewReviewReminderJob(decisions, publisher, clock, log, jobs.ReviewReminderConfig{
		OverdueAfter: cfg.Scheduler.ReviewOverdue,
		Cooldown:     cfg.Scheduler.ReminderCooldown,
	})
	if err := sched.Register(reminder, reminderSchedule); err != nil {
		return nil, err
	}

	return sched, nil
}

func redisConfig(cfg config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	rc.PoolSize = cfg.PoolSize
	rc.MinIdleConns = cfg.MinIdleConns
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout
	return rc
}

func generatorConfig(cfg *config.Config, log *slog.Logger) generator.ClientConfig {
	gc := generator.DefaultClientConfig(cfg.Generator.BaseURL)
	gc.APIKey = cfg.Generator.APIKey
	gc.Timeout = cfg.Generator.Timeout
	gc.RateLimiterConfig.RequestsPerSecond = cfg.Generator.RequestsPerSecond
	gc.RateLimiterConfig.BurstSize = cfg.Generator.Burst
	gc.Logger = log
	gc.Debug = cfg.App.Debug
	return gc
}

func httpConfig(cfg *config.Config) httpapi.Config {
	hc := httpapi.DefaultConfig()
	hc.Host = cfg.HTTP.Host
	hc.Port = cfg.HTTP.Port
	hc.ReadTimeout = cfg.HTTP.ReadTimeout
	hc.WriteTimeout = cfg.HTTP.WriteTimeout
	hc.IdleTimeout = cfg.HTTP.IdleTimeout
	hc.RequestTimeout = cfg.HTTP.RequestTimeout
	hc.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	hc.AllowedOrigins = cfg.HTTP.AllowedOrigins
	hc.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	hc.APIKeyHeader = cfg.HTTP.APIKeyHeader
	hc.Version = cfg.App.Version
	return hc
}
