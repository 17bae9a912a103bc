package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guildmembers/internal/config"
	"guildmembers/internal/database"
	"guildmembers/internal/handlers"
	"guildmembers/internal/repository"
	"guildmembers/internal/security"
	"guildmembers/internal/service"
	"guildmembers/internal/telemetry"
	"guildmembers/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	startup := handlers.NewStartupStatus()

	// Initialize database with config (supports sqlite, postgres, mysql)
	startup.SetCurrentStep(handlers.StepDatabase)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	startup.CompleteStep(handlers.StepDatabase)
	slog.Info("Database connection established", "type", cfg.DatabaseType)

	startup.SetCurrentStep(handlers.StepMigrations)
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return err
	}
	startup.CompleteStep(handlers.StepMigrations)
	slog.Info("Migrations completed successfully")

	startup.SetCurrentStep(handlers.StepServices)
	mailer, err := service.NewEmailService(ctx, cfg.SESRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.Debug)
	if err != nil {
		return err
	}
	if !mailer.IsEnabled() {
		slog.Warn("SES_FROM_EMAIL is not set, emails will only be logged")
	}

	tokens := security.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	accounts := service.NewAccountService(repository.NewUserRepository(db), tokens)
	members := service.NewMemberService(db, accounts, mailer, cfg.SiteID)
	memberships := service.NewMembershipService(db, cfg.MemberTypes)
	payments := service.NewPaymentService(db, cfg.PaymentMethods, cfg.DefaultPaymentMethod())
	signups := service.NewSignupService(db, members, memberships, payments, mailer, service.SignupConfig{
		StaffEmails:    cfg.StaffEmails,
		MemberTypes:    cfg.MemberTypes,
		PaymentMethods: cfg.PaymentMethods,
	})
	signupLimiter := security.NewRateLimiter(cfg.SignupRatePerMinute, cfg.SignupBurst)

	handler := handlers.NewRouter(handlers.Handlers{
		Auth:          handlers.NewAuthHandler(accounts),
		Members:       handlers.NewMemberHandler(members, memberships, payments),
		Memberships:   handlers.NewMembershipHandler(memberships),
		Signups:       handlers.NewSignupHandler(signups),
		Middleware:    handlers.NewMiddleware(tokens, accounts),
		Startup:       startup,
		DB:            db,
		SignupLimiter: signupLimiter,
		TrustProxy:    cfg.TrustProxy,
	})
	startup.CompleteStep(handlers.StepServices)

	go runPeriodically(ctx, time.Hour, func() {
		changed, err := members.RefreshCurrentFlags(ctx)
		if err != nil {
			slog.Error("Error refreshing current flags", "error", err)
			return
		}
		slog.Info("Current flags refreshed", "changed", changed)
	})
	go runPeriodically(ctx, 10*time.Minute, signupLimiter.Cleanup)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	startup.MarkReady()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runPeriodically calls fn every interval until ctx is done
func runPeriodically(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
