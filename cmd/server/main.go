package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/adaptive"
	"github.com/stemsi/exstem-adaptive/internal/config"
	"github.com/stemsi/exstem-adaptive/internal/database"
	"github.com/stemsi/exstem-adaptive/internal/event"
	"github.com/stemsi/exstem-adaptive/internal/handler"
	"github.com/stemsi/exstem-adaptive/internal/logger"
	"github.com/stemsi/exstem-adaptive/internal/metrics"
	"github.com/stemsi/exstem-adaptive/internal/middleware"
	"github.com/stemsi/exstem-adaptive/internal/repository"
	"github.com/stemsi/exstem-adaptive/internal/router"
	"github.com/stemsi/exstem-adaptive/internal/selection"
	"github.com/stemsi/exstem-adaptive/internal/service"
	"github.com/stemsi/exstem-adaptive/internal/validator"
	"github.com/stemsi/exstem-adaptive/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Adaptive")

	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to RabbitMQ (optional) ────────────────────────────────
	publisher, err := event.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer publisher.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	attemptRepo := repository.NewExamAttemptRepository(pool)
	adaptiveRepo := repository.NewAdaptiveRepository(pool)
	cohortRepo := repository.NewCohortRepository(pool)
	logRepo := repository.NewExamLogRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	rnd := adaptive.NewEntropySource()
	selector := selection.NewSelector(questionRepo, rnd, log)
	broadcaster := service.NewBroadcaster(rdb, log)

	authService := service.NewAuthService(cfg)
	examService := service.NewExamService(examRepo, questionRepo, attemptRepo, cfg, log)
	sessionService := service.NewExamSessionService(
		examRepo, sessionRepo, attemptRepo, questionRepo, adaptiveRepo,
		service.NewPoolSetProvider(selector), rdb, broadcaster, publisher, log,
	)
	individualService := service.NewIndividualService(
		examRepo, sessionRepo, adaptiveRepo, questionRepo, selector, rnd, log,
	)
	synchronizedService := service.NewSynchronizedService(
		examRepo, sessionRepo, cohortRepo, questionRepo, selector, rdb, broadcaster, publisher, cfg, log,
	)
	monitorService := service.NewMonitorService(examRepo, cohortRepo, attemptRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Exam:         handler.NewExamHandler(examService, log),
		Session:      handler.NewSessionHandler(sessionService, log),
		Adaptive:     handler.NewAdaptiveHandler(individualService, log),
		Synchronized: handler.NewSynchronizedHandler(synchronizedService, log),
		Monitor:      handler.NewMonitorHandler(rdb, monitorService, log),
		WS:           handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:       handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	autosaveWorker := worker.NewAutosaveWorker(sessionRepo, rdb, log)
	proctoringWorker := worker.NewProctoringWorker(logRepo, rdb, log)
	limiter := middleware.NewRateLimiter(cfg.PollRatePerSecond, cfg.PollBurst)

	wg.Add(3)
	go func() { defer wg.Done(); autosaveWorker.Start(workerCtx) }()
	go func() { defer wg.Done(); proctoringWorker.Start(workerCtx) }()
	go func() { defer wg.Done(); limiter.Run(workerCtx) }()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for their final flush.
	workerCancel()
	wg.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
