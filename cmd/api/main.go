package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadflow_backend/internal/appointments"
	"leadflow_backend/internal/catalog"
	"leadflow_backend/internal/chat"
	"leadflow_backend/internal/chatsync"
	"leadflow_backend/internal/conversation"
	"leadflow_backend/internal/conversations"
	"leadflow_backend/internal/email"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/flow"
	"leadflow_backend/internal/flow/graph"
	"leadflow_backend/internal/flow/steps"
	"leadflow_backend/internal/funnel"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/http/router"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/notification"
	"leadflow_backend/internal/notification/sse"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/stages"
	"leadflow_backend/platform/ai/moonshot"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/kv"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"google.golang.org/adk/model"
)

const kvNamespace = "leadflow:"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg, log)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	if cfg.GetMigrationsEnabled() {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, pool, log)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	// Instances sharing a redis store tell their own writes apart by origin.
	origin := uuid.NewString()
	store, closeStore, err := newKVStore(cfg, origin, log)
	if err != nil {
		log.Error("failed to initialize key-value store", "error", err)
		panic("failed to initialize key-value store: " + err.Error())
	}
	defer closeStore()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	clock := clockwork.NewRealClock()
	val := validator.New()
	sender := email.New(cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leads := leadrepo.New(pool)
	stageService := stages.NewService(leads, stages.Options{
		Counter:   leads,
		Bus:       eventBus,
		Clock:     clock,
		CacheTTL:  cfg.GetStageCacheTTL(),
		WriteBack: cfg.GetStageWriteBack(),
	}, log)

	appointmentsModule := appointments.NewModule(pool, val, sender, clock, log)
	catalogModule := catalog.NewModule(pool, val)
	followUps := scheduler.NewFollowUps(scheduler.NewFollowUpRepository(pool))

	var llm model.LLM
	if cfg.IsAIEnabled() {
		llm = moonshot.NewModel(moonshot.Config{APIKey: cfg.GetMoonshotAPIKey(), Model: cfg.GetMoonshotModel()})
		log.Info("ai responses enabled", "model", llm.Name())
	} else {
		log.Warn("MOONSHOT_API_KEY not configured; ai response steps will use their fallback message")
	}

	registry, err := steps.NewRegistry(
		steps.NewMessageHandler(log),
		steps.NewQuestionHandler(val, log),
		steps.NewAIResponseHandler(llm, log),
		steps.NewLeadQualificationHandler(stageService, log),
		steps.NewBookAppointmentHandler(steps.AppointmentDeps{
			Appointments:  appointmentsModule.Service,
			Stages:        stageService,
			FollowUps:     followUps,
			Verifications: appointmentsModule.Service,
			FollowUpDelay: cfg.GetFollowUpDelay(),
			Clock:         clock,
		}, log),
		steps.NewCheckAvailabilityHandler(appointmentsModule.Service, clock, log),
		steps.NewProductCatalogHandler(catalogModule.Repository(), log),
		steps.NewServiceCatalogHandler(catalogModule.Repository(), log),
	)
	if err == nil {
		err = registry.RequireComplete()
	}
	if err != nil {
		panic("failed to build step registry: " + err.Error())
	}

	templates, err := graph.LoadDir(cfg.GetFlowTemplatesDir())
	if err != nil {
		log.Error("failed to load flow templates", "error", err, "dir", cfg.GetFlowTemplatesDir())
		panic("failed to load flow templates: " + err.Error())
	}

	convStore := conversation.NewStore(store, clock, log)
	executor := flow.NewExecutor(templates, registry, convStore, log)
	for _, id := range templates.IDs() {
		tpl, _ := templates.Template(ctx, id)
		if err := executor.CheckTemplate(tpl); err != nil {
			panic("invalid flow template: " + err.Error())
		}
	}
	log.Info("flow templates loaded", "count", len(templates.IDs()))

	sweeper := conversation.NewSweeper(convStore, clock, log,
		cfg.GetConversationRetention(), cfg.GetConversationSweepInterval(), cfg.GetConversationSweepDelay())

	// Live chat view: sync engine -> inbox -> SSE
	stream := sse.New(log)
	defer stream.Close()
	inbox := chatsync.NewInbox(stageService, stream)
	syncEngine := chatsync.NewEngine(inbox, chatsync.Options{
		Store:           store,
		Bus:             eventBus,
		Clock:           clock,
		Validator:       val,
		DrainInterval:   cfg.GetSyncDrainInterval(),
		RefreshThrottle: cfg.GetSyncRefreshThrottle(),
		Origin:          origin,
	}, log)

	// Notification module subscribes to domain events (not HTTP-facing)
	notificationModule := notification.New(stream, log)
	notificationModule.RegisterHandlers(eventBus)
	defer notificationModule.Close()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			conversations.NewModule(executor, val),
			funnel.NewModule(stageService, val),
			chat.NewModule(syncEngine, inbox, eventBus, stream),
			catalogModule,
			appointmentsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app, val),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		syncEngine.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newKVStore builds the durable key-value store selected by KV_BACKEND.
func newKVStore(cfg *config.Config, origin string, log *logger.Logger) (kv.Store, func(), error) {
	switch cfg.GetKVBackend() {
	case "redis":
		client, err := kv.NewRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("key-value store: redis")
		return kv.NewRedis(client, kvNamespace, origin, log), func() { _ = client.Close() }, nil
	case "noop":
		log.Warn("key-value store: noop; conversations are not persisted")
		return kv.Noop{}, func() {}, nil
	default:
		log.Info("key-value store: memory")
		return kv.NewMemory(kv.NewHub(), origin), func() {}, nil
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
