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

	"respack/internal/api"
	"respack/internal/config"
	"respack/internal/logging"
	"respack/internal/middleware"
	"respack/internal/packer"
	"respack/internal/service"
	"respack/internal/telemetry"
	"respack/internal/watch"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	path := os.Getenv("RESPACK_CONFIG")
	if path == "" {
		path = config.DefaultPath
	}

	// Load configuration
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal("failed to load config:", err)
	}
	if cfg.Watch.Input == "" || cfg.Watch.Output == "" {
		log.Fatal("watch.input and watch.output must be configured")
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Environment == "dev")
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "respackd")
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer shutdownTracing(context.Background())
	}

	db, err := service.OpenDB(cfg)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	svc, err := service.New(cfg, logger, db)
	if err != nil {
		logger.Fatal("failed to initialize packer", zap.Error(err))
	}
	input, err := svc.Dir(cfg.Watch.Input)
	if err != nil {
		logger.Fatal("invalid watch.input", zap.Error(err))
	}
	output, err := svc.Dir(cfg.Watch.Output)
	if err != nil {
		logger.Fatal("invalid watch.output", zap.Error(err))
	}

	watcher, err := watch.New(input.String(), func(ctx context.Context) error {
		report, run, err := svc.Pack(ctx, input, output, packer.NopObserver{})
		if run != nil {
			logger.Info("pack finished",
				zap.String("run", run.ID),
				zap.Int("repacked", report.Repacked()),
				zap.Int("dirs", len(report.Dirs)),
				zap.Bool("full", report.FullRepack),
			)
		}
		return err
	}, logger.Logger, watch.WithDebounce(cfg.Watch.Debounce.Duration), watch.WithRunOnStart(true))
	if err != nil {
		logger.Fatal("failed to start watcher", zap.Error(err))
	}

	mux := http.NewServeMux()
	api.NewRunHandler(svc.History).Register(mux)

	// RequestID wraps Logger so completed requests carry their ID.
	handler := middleware.Chain(
		mux,
		middleware.Logger(logger),
		middleware.RequestID,
		middleware.Recover(logger),
	)
	server := &http.Server{Addr: cfg.Addr(), Handler: handler}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("starting server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		logger.Info("watching", zap.String("input", input.String()), zap.String("output", output.String()))
		return watcher.Run(ctx)
	})

	if err := eg.Wait(); err != nil {
		logger.Error("daemon stopped", zap.Error(err))
	}
}
