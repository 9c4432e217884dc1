package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-agent/internal/auth"
	"github.com/stemsi/exstem-agent/internal/backend"
	"github.com/stemsi/exstem-agent/internal/clock"
	"github.com/stemsi/exstem-agent/internal/config"
	"github.com/stemsi/exstem-agent/internal/database"
	"github.com/stemsi/exstem-agent/internal/handler"
	"github.com/stemsi/exstem-agent/internal/journal"
	"github.com/stemsi/exstem-agent/internal/logger"
	"github.com/stemsi/exstem-agent/internal/repository"
	"github.com/stemsi/exstem-agent/internal/router"
	"github.com/stemsi/exstem-agent/internal/service"
	"github.com/stemsi/exstem-agent/internal/validator"
	"github.com/stemsi/exstem-agent/internal/worker"
	"golang.org/x/term"
)

// completionLinger keeps the API up after finalization so the UI can read
// the final state.
const completionLinger = 10 * time.Second

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("backend", cfg.BackendURL).
		Str("test_id", cfg.TestID).
		Msg("Starting ExStem Agent")

	if cfg.TestID == "" {
		log.Fatal().Msg("TEST_ID is not set")
	}

	// ─── Access Token ──────────────────────────────────────────────────
	if cfg.AccessToken == "" {
		token, err := promptToken()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read access token")
		}
		cfg.AccessToken = token
	}

	claims, err := auth.Inspect(cfg.AccessToken, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Access token rejected")
	}
	studentID := 0
	if claims != nil {
		studentID = claims.UserID
	}
	fingerprint := auth.Fingerprint(cfg.AccessToken)
	log = log.With().Str("token", fingerprint).Int("student_id", studentID).Logger()

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to PostgreSQL (optional journal) ──────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	drafts := repository.NewDraftRepository(rdb, fingerprint, cfg.TestID)
	publisher := journal.NewRedisPublisher(rdb, studentID, log)

	var events handler.EventLister
	var journalWorker *worker.JournalWorker
	if pool != nil {
		defer pool.Close()
		eventRepo := repository.NewEventRepository(pool)
		events = eventRepo
		journalWorker = worker.NewJournalWorker(eventRepo, rdb, cfg.JournalBatchSize, log)
	}

	// ─── Initialize Services ──────────────────────────────────────────
	client := backend.NewClient(cfg.BackendURL, cfg.AccessToken, cfg.RequestTimeout, log)
	reconciler := clock.NewReconciler(nil)
	svc := service.NewSessionService(cfg.TestID, cfg.AccessToken, client, reconciler, drafts, publisher, log, cfg.TickInterval)

	startCtx, startCancel := context.WithTimeout(ctx, 3*cfg.RequestTimeout)
	err = svc.Start(startCtx)
	startCancel()
	if err != nil {
		var statusErr *backend.StatusError
		if errors.As(err, &statusErr) {
			log.Fatal().Err(err).Int("status", statusErr.StatusCode).Msg("Backend refused the attempt")
		}
		log.Fatal().Err(err).Msg("Failed to start attempt")
	}
	log.Info().Dur("clock_drift", reconciler.Drift()).Msg("Clock reconciled with backend")

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if journalWorker != nil {
			journalWorker.Start(workerCtx)
		}
	}()

	go svc.Run(ctx)

	// ─── Setup Router ──────────────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(svc, events, log),
		WS:      handler.NewWSHandler(svc, log, cfg.AllowedOrigins),
	}
	r := router.SetupRouter(ctx, handlers, cfg)

	srv := &http.Server{
		Addr:              "127.0.0.1:" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Agent API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Wait for completion or signal ─────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")
	case <-svc.Done():
		log.Info().Dur("linger", completionLinger).Msg("Attempt finalized, shutting down after linger")
		select {
		case <-time.After(completionLinger):
		case <-quit:
		}
	}

	// 1. Stop the timer and accepting new HTTP requests.
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the journal worker and wait for the queue to drain.
	workerCancel()
	select {
	case <-workersDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Journal worker did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// promptToken reads the access token from the terminal without echo.
func promptToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("ACCESS_TOKEN is not set and stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Access token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", auth.ErrTokenRequired
	}
	return token, nil
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
