package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/benvon/fictag/internal/app"
	"github.com/benvon/fictag/internal/config"
	"github.com/benvon/fictag/internal/handlers"
	"github.com/benvon/fictag/internal/logger"
	"github.com/benvon/fictag/internal/middleware"
	"github.com/benvon/fictag/internal/queue"
	"github.com/benvon/fictag/internal/recommend"
	"github.com/benvon/fictag/internal/registry"
	"github.com/benvon/fictag/internal/telemetry"
	"github.com/benvon/fictag/internal/workers"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for backend prompt/response logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	if err := run(cfg, debugMode, zapLogger); err != nil {
		zapLogger.Error("server_exited_with_error", zap.Error(err))
		_ = logger.Sync(zapLogger)
		os.Exit(1)
	}
	zapLogger.Info("server_exited")
}

func run(cfg *config.Config, debugMode bool, zapLogger *zap.Logger) error {
	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.String("vocabulary_source", cfg.VocabularySource),
		zap.String("resubmit_policy", string(cfg.ResubmitPolicy)),
		zap.Bool("async_enabled", cfg.AsyncEnabled()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(ctx, telemetry.DefaultServiceName, cfg.OTELEndpoint); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	vocab, err := app.OpenVocabulary(ctx, cfg, zapLogger)
	if err != nil {
		return fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer func() {
		if err := vocab.Close(); err != nil {
			zapLogger.Warn("failed_to_close_vocabulary_connections", zap.Error(err))
		}
	}()

	backend, err := app.NewBackend(cfg, zapLogger, debugMode)
	if err != nil {
		return err
	}

	works := registry.NewWorkCatalog()
	pipeline := recommend.New(backend, vocab.Source, registry.New(),
		recommend.WithPolicy(cfg.ResubmitPolicy),
		recommend.WithLogger(zapLogger),
		recommend.WithDebug(debugMode),
	)

	healthChecker := handlers.NewHealthChecker()
	healthChecker.AddCheck("vocabulary", vocab.Ping)

	var redisClient *redis.Client
	if vocab.Cache != nil {
		redisClient = vocab.Cache.Client()
		healthChecker.AddCheck("redis", vocab.Cache.Ping)
	}

	var jobQueue *queue.RabbitMQQueue
	var enqueuer handlers.JobEnqueuer
	if cfg.AsyncEnabled() {
		jobQueue, err = connectQueue(ctx, cfg.RabbitMQURL, zapLogger)
		if err != nil {
			return err
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		enqueuer = jobQueue
		healthChecker.AddCheck("queue", jobQueue.HealthCheck)
	}

	rateLimitMW, err := middleware.RateLimit(cfg.RateLimit, redisClient, zapLogger)
	if err != nil {
		return fmt.Errorf("failed to configure rate limiting: %w", err)
	}

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order; the first registered is outermost
	if tracingEnabled {
		r.Use(otelmux.Middleware(telemetry.DefaultServiceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORSFromEnv(cfg.FrontendURL, zapLogger))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	handlers.NewOpenAPIHandler(filepath.Join("api", "openapi", "openapi.yaml")).RegisterRoutes(r)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(rateLimitMW)
	handlers.NewWorkHandler(pipeline, works, enqueuer, zapLogger).RegisterRoutes(apiRouter)
	handlers.NewVocabularyHandler(vocab.Source, zapLogger).RegisterRoutes(apiRouter)

	// Preflight requests are answered by the CORS middleware; this keeps mux from returning 405
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if jobQueue != nil {
		worker := workers.NewRecommender(pipeline, works, zapLogger)
		g.Go(func() error {
			return worker.Run(gctx, jobQueue, cfg.RabbitMQPrefetch)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("server_shutting_down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// connectQueue dials RabbitMQ with capped exponential backoff so the server
// tolerates the broker starting after it
func connectQueue(ctx context.Context, amqpURL string, zapLogger *zap.Logger) (*queue.RabbitMQQueue, error) {
	const maxAttempts = 10
	const initialDelay = 2 * time.Second
	const maxDelay = 30 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		q, err := queue.NewRabbitMQQueue(amqpURL, zapLogger)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return q, nil
		}
		lastErr = err

		delay := min(initialDelay*time.Duration(1<<uint(attempt)), maxDelay)
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxAttempts, lastErr)
}
