package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"sleepingpill/config"
	"sleepingpill/internal/adapters/auth"
	"sleepingpill/internal/adapters/email"
	deliveryhttp "sleepingpill/internal/delivery/http"
	"sleepingpill/internal/delivery/http/controllers"
	"sleepingpill/internal/domain"
	"sleepingpill/internal/repository/memory"
	"sleepingpill/internal/repository/postgres"
	"sleepingpill/internal/services"
)

// @title sleepingpill API
// @version 1.0
// @description Talk submissions and program for conferences, stored as an event log.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := config.NewLogger()
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, closeEvents, err := openEventLog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	mailer, err := email.NewMailer(logger, email.MailerConfig{
		Provider:    cfg.EmailProvider,
		FromAddress: cfg.EmailFromAddress,
		FromName:    cfg.EmailFromName,
		SES: email.SESConfig{
			Region:             cfg.AWSRegion,
			AccessKeyID:        cfg.AWSAccessKeyID,
			SecretAccessKey:    cfg.AWSSecretAccessKey,
			InsecureSkipVerify: cfg.SESInsecureSkipVerify,
		},
	})
	if err != nil {
		return err
	}
	emailService := services.NewEmailService(logger, mailer, email.NewTemplateRenderer())

	holder := services.NewSessionHolder(logger)
	sessionService := services.NewSessionService(logger, events, holder, emailService, services.SessionServiceOptions{
		StrictConcurrency: cfg.StrictConcurrency,
		Timeout:           cfg.RequestTimeout,
	})
	if err := sessionService.Load(ctx); err != nil {
		return err
	}

	var members []services.CommitteeMember
	if cfg.AdminEmail != "" {
		members = append(members, services.CommitteeMember{Email: cfg.AdminEmail, PasswordHash: cfg.AdminPasswordHash})
	} else {
		logger.Warn("ADMIN_EMAIL not set, committee login is disabled")
	}
	authService := services.NewAuthService(members, auth.NewBcryptHasher(0), auth.NewJWTIssuer(cfg.JWTSecret), cfg.JWTExpiry)

	router := deliveryhttp.NewRouter(deliveryhttp.RouterConfig{
		Logger:             logger,
		TokenVerifier:      auth.NewJWTVerifier(cfg.JWTSecret),
		SessionController:  controllers.NewSessionController(logger, sessionService),
		PublicController:   controllers.NewPublicController(logger, sessionService),
		AuthController:     controllers.NewAuthController(logger, authService),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openEventLog connects to Postgres and creates the schema, or returns the
// in-memory log when DATABASE_URL is "memory".
func openEventLog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.EventRepository, func(), error) {
	if cfg.UsesMemoryDatabase() {
		logger.Warn("using the in-memory event log, nothing survives a restart")
		return memory.NewEventRepository(), func() {}, nil
	}
	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, err
	}
	repo := postgres.NewEventRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repo, func() { db.Close() }, nil
}
