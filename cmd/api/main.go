package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/tudu/server/internal/auth"
	"github.com/tudu/server/internal/config"
	"github.com/tudu/server/internal/db"
	httphandler "github.com/tudu/server/internal/http"
	"github.com/tudu/server/internal/http/handlers"
	"github.com/tudu/server/internal/logger"
	"github.com/tudu/server/internal/notify"
	"github.com/tudu/server/internal/repo"
	"github.com/tudu/server/internal/scheduler"
	"github.com/tudu/server/internal/tasks"
)

func main() {
	// Load .env from CWD so it works in local dev (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := openWithRetry(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database",
			"dsn", db.RedactDSN(cfg.DatabaseURL),
			"error", err.Error())
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatal("failed to run migrations", "error", err.Error())
	}

	// Repositories
	userRepo := repo.NewUserRepo(database)
	otpRepo := repo.NewOtpRepo(database)
	taskRepo := repo.NewTaskRepo(database)

	// Outbound collaborators: constructed once, injected by handle
	mailer := notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.OTPTTL)
	gateway := notify.NewHTTPPushClient(cfg.PushEndpoint, cfg.PushAPIKey)

	// Services
	challengeManager := auth.NewChallengeManager(otpRepo, userRepo, mailer, cfg.OTPSalt, cfg.OTPTTL, log)
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	hasher := auth.NewHasher(0)
	authService := auth.NewAuthService(challengeManager, jwtService, userRepo, hasher, log)
	taskService := tasks.NewService(taskRepo)

	// Due-task scheduler: single instance, single goroutine, stopped via ctx
	dueScheduler := scheduler.New(taskRepo, userRepo, gateway, log,
		cfg.SchedulerInterval, cfg.SchedulerBatch, cfg.SchedulerTZ)
	go dueScheduler.Run(ctx)

	// Handlers and router
	authHandler := handlers.NewAuthHandler(authService)
	taskHandler := handlers.NewTaskHandler(taskService)
	router := httphandler.NewRouter(authHandler, taskHandler, jwtService, userRepo)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed to start", "error", err.Error())
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel() // stops the scheduler loop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", "error", err.Error())
	}

	log.Info("server exited")
}

// openWithRetry opens the database, retrying with exponential backoff so a
// slow-starting Postgres (compose, fresh deploy) doesn't kill the process.
func openWithRetry(ctx context.Context, databaseURL string) (*sql.DB, error) {
	var database *sql.DB
	backoff := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var openErr error
		database, openErr = db.Open(ctx, databaseURL)
		if openErr != nil {
			return retry.RetryableError(openErr)
		}
		return nil
	})
	return database, err
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the module root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
