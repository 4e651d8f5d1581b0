package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cohouse-dinner/game-registration/api"
	"github.com/cohouse-dinner/game-registration/config"
	"github.com/cohouse-dinner/game-registration/notify"
	"github.com/cohouse-dinner/game-registration/saga"
	"github.com/cohouse-dinner/game-registration/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "game-registration"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Env())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with an error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(env api.Environment) *slog.Logger {
	if env == api.PROD {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", slog.String("error", err.Error()))
		}
	}()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := createStorage(ctx, awsCfg, cfg, logger)
	if err != nil {
		return err
	}

	locker, closeLocker, err := createLocker(store, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	gateway, err := createPaymentGateway(ctx, awsCfg, cfg, logger)
	if err != nil {
		return err
	}

	sender := createEmailSender(awsCfg, cfg, logger)
	notifier := notify.NewNotifier(sender, cfg.MailFrom, cfg.OperatorEmail, logger)

	registrationSaga := saga.NewSaga(store, locker, store, store, gateway, notifier, logger, cfg.SagaConfig())

	h, err := api.NewAPI(store, registrationSaga, logger, cfg.Env(), cfg.AllowedOrigins).Handler()
	if err != nil {
		return fmt.Errorf("failed to build the api: %w", err)
	}

	s := &http.Server{
		Handler:           otelhttp.NewHandler(h, serviceName),
		Addr:              cfg.Addr(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", slog.String("addr", s.Addr))
		serveErr <- s.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return s.Shutdown(shutdownCtx)
}
