package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aaronfeingold/invoice-track/internal/backend"
	"github.com/aaronfeingold/invoice-track/internal/config"
	httpserver "github.com/aaronfeingold/invoice-track/internal/http"
	"github.com/aaronfeingold/invoice-track/internal/http/handlers"
	"github.com/aaronfeingold/invoice-track/internal/notify"
	"github.com/aaronfeingold/invoice-track/internal/reconcile"
	"github.com/aaronfeingold/invoice-track/internal/registry"
	"github.com/aaronfeingold/invoice-track/internal/submit"
	"github.com/aaronfeingold/invoice-track/internal/transport"
)

func main() {
	logger := log.New(os.Stdout, "[trackerd] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, sessionCloser := setupSession(cfg, logger)
	defer sessionCloser()

	backendClient := backend.NewClient(backend.ClientConfig{
		BaseURL:    cfg.BackendBaseURL,
		AuthToken:  cfg.BackendAuthToken,
		Timeout:    time.Duration(cfg.BackendTimeoutMS) * time.Millisecond,
		MaxRetries: cfg.BackendMaxRetries,
	})

	jobRegistry := registry.New()
	notifier := notify.New(backendClient, logger)
	jobRegistry.OnChange(notifier.HandleChange)

	userChannel := transport.UserChannel(cfg.ChannelPrefix, cfg.UserID)
	reconciler := reconcile.New(jobRegistry, session, userChannel, logger)
	reconciler.OnUserNotification(notifier.HandleUserNotification)
	session.OnEvent(reconciler.Handle)

	if err := session.Acquire(ctx); err != nil {
		logger.Fatalf("acquire event session: %v", err)
	}
	defer session.Release()

	if err := notifier.Refresh(ctx); err != nil {
		logger.Printf("initial unread-count refresh failed: %v", err)
	}

	orchestrator := submit.NewOrchestrator(backendClient, jobRegistry, session, logger)
	api := handlers.NewAPI(handlers.Dependencies{
		Registry:     jobRegistry,
		Orchestrator: orchestrator,
		Notifier:     notifier,
		Session:      session,
		Logger:       logger,
	})

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("status api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupSession(cfg config.Config, logger *log.Logger) (transport.Session, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not set, using in-process event session")
		return transport.NewLocalSession(cfg.ChannelPrefix, cfg.UserID, logger), func() {}
	}

	session, err := transport.NewRedisSession(transport.RedisConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		DB:            cfg.RedisDB,
		ChannelPrefix: cfg.ChannelPrefix,
		UserID:        cfg.UserID,
		MinBackoff:    time.Duration(cfg.ReconnectMinMS) * time.Millisecond,
		MaxBackoff:    time.Duration(cfg.ReconnectMaxMS) * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Fatalf("failed to build redis event session: %v", err)
	}
	logger.Printf("using redis event session addr=%s prefix=%s", cfg.RedisAddr, cfg.ChannelPrefix)
	return session, func() {
		if err := session.Close(); err != nil {
			logger.Printf("failed closing redis client: %v", err)
		}
	}
}
