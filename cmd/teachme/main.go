package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TeachMe/internal/backend"
	"TeachMe/internal/chatbot"
	"TeachMe/internal/config"
	"TeachMe/internal/hub"
	"TeachMe/internal/session"
	"TeachMe/internal/telemetry"
	"TeachMe/internal/web"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.SlogLevel())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		tracer trace.Tracer
		meter  metric.Meter
	)
	if cfg.Telemetry {
		var cleanup func()
		tracer, meter, cleanup, err = telemetry.InitTelemetry(ctx, cfg.LogDir)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer cleanup()
	}

	store, err := session.Open(cfg.Store, cfg.StoreDSN, cfg.BackendURL)
	if err != nil {
		return err
	}
	defer store.Close()

	client := backend.NewClient(backend.Options{
		Code:    cfg.QuestionCode,
		Timeout: cfg.BackendTimeout,
		Logger:  logger,
		Tracer:  tracer,
		Meter:   meter,
	})

	notifications := hub.New(hub.Options{
		PingInterval: cfg.PingInterval,
		Logger:       logger,
	})

	bot, err := chatbot.New(chatbot.Options{
		Store:    store,
		Client:   client,
		Notifier: notifications,
		Logger:   logger,
		Tracer:   tracer,
		Meter:    meter,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chatbot: %w", err)
	}

	server, err := web.New(web.Options{
		Bot:        bot,
		Sockets:    notifications,
		CookieName: cfg.CookieName,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize web server: %w", err)
	}

	logger.Info("starting teachme",
		"listen", cfg.ListenAddr,
		"store", cfg.Store,
		"backend_url", cfg.BackendURL,
		"session_ttl", cfg.SessionTTL,
	)

	go sweep(ctx, bot, cfg.SweepInterval, cfg.SessionTTL, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown http server gracefully", "error", err)
	}
	logger.Info("teachme stopped")
	return nil
}

// sweep ends sessions that stayed idle for longer than ttl.
func sweep(ctx context.Context, bot *chatbot.ChatBot, every, ttl time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := bot.Sweep(ctx, ttl); err != nil {
				logger.Error("session sweep failed", "error", err)
			}
		}
	}
}
