package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"FeedbackFlow/internal/config"
	"FeedbackFlow/internal/infrastructure/llm"
	"FeedbackFlow/internal/infrastructure/scheduler"
	"FeedbackFlow/internal/infrastructure/storage"
	"FeedbackFlow/internal/infrastructure/stream"
	"FeedbackFlow/internal/infrastructure/telegram"
	"FeedbackFlow/internal/logging"
	"FeedbackFlow/internal/ports"
	"FeedbackFlow/internal/transport/httpapi"
	"FeedbackFlow/internal/triage"
	"FeedbackFlow/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	hub       *stream.Hub
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	server    *httpapi.Server
}

// New opens storage, resolves the classification service and builds every component.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging)
	}

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	repo := storage.NewRepository(db, cfg.Database.Driver)

	completer, err := llm.NewRegistry().Resolve(ctx, cfg.AI)
	switch {
	case errors.Is(err, llm.ErrMisconfigured):
		baseLogger.Warn("ai service not configured, using keyword rules only", "provider", cfg.AI.Provider)
		completer = nil
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("resolve ai provider: %w", err)
	}

	filter := triage.NewFilter(completer, cfg.AI.Timeout, baseLogger.With("component", "filter"))
	classifier := triage.NewClassifier(filter, completer, cfg.AI.Timeout, baseLogger.With("component", "classifier"))

	hub := stream.NewHub(
		stream.WithHeartbeatInterval(cfg.Stream.HeartbeatInterval),
		stream.WithLogger(baseLogger.With("component", "stream")),
	)

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Enabled() {
		notifier = tg
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Feedback:      repo,
		Tasks:         repo,
		Analyser:      classifier,
		Broadcaster:   hub,
		Notifier:      notifier,
		Logger:        baseLogger.With("component", "pipeline"),
		Throttle:      cfg.Pipeline.Throttle,
		PreviewLength: cfg.Pipeline.PreviewLength,
	})

	sched := usecase.NewScheduler(
		scheduler.NewIntervalScheduler(cfg.Scheduler.Interval),
		pipeline,
		cfg.Scheduler.Owners,
		baseLogger.With("component", "scheduler"),
	)

	server := httpapi.NewServer(httpapi.Deps{
		Processor:    pipeline,
		Hub:          hub,
		Importer:     repo,
		Tasks:        repo,
		Logger:       baseLogger.With("component", "http"),
		OnShutdown:   []func(){hub.Stop},
		WriteTimeout: cfg.Stream.WriteTimeout,
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		hub:       hub,
		pipeline:  pipeline,
		scheduler: sched,
		server:    server,
	}, nil
}

// Migrate creates the schema if it does not exist yet.
func (a *Application) Migrate(ctx context.Context) error {
	return storage.Migrate(ctx, a.db)
}

// Serve runs the HTTP API, heartbeats and the recurring scheduler until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.Migrate(ctx); err != nil {
		return err
	}

	a.hub.Start()
	defer a.hub.Stop()

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.scheduler.Stop(stopCtx); err != nil {
			a.logger.Warn("scheduler stop", "error", err)
		}
	}()

	return a.server.Run(ctx, a.cfg.Server.Address, a.cfg.Server.ReadTimeout, a.cfg.Server.ShutdownTimeout)
}

// ProcessOnce performs a single run for ownerID outside the HTTP server.
func (a *Application) ProcessOnce(ctx context.Context, ownerID string) (usecase.RunResult, error) {
	if err := a.Migrate(ctx); err != nil {
		return usecase.RunResult{}, err
	}
	return a.pipeline.ProcessPending(ctx, ownerID)
}

// Close releases the database handle.
func (a *Application) Close() error {
	return a.db.Close()
}
