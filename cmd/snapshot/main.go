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

	"github.com/pinto-org/beanstalk-snapshot/internal/config"
	"github.com/pinto-org/beanstalk-snapshot/internal/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// execute loads configuration, installs logging and tracing, then runs job
// alongside the optional metrics server until job returns or a signal arrives.
func execute(job func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	logger.Info("starting beanstalk-snapshot",
		"arb_rpc", cfg.Chain.ArbRPCURL,
		"arb_chain_id", cfg.Chain.ArbChainID,
		"snapshot_block", cfg.Blocks.Snapshot,
		"reseed_block_arb", cfg.Blocks.ReseedArb,
		"reseed_block_eth", cfg.Blocks.ReseedEth,
		"cache_dir", cfg.Paths.CacheDir,
		"output_dir", cfg.Paths.OutputDir,
	)

	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), tracing.Config{
		ServiceName:   "beanstalk-snapshot",
		Endpoint:      tracingEndpoint,
		Insecure:      cfg.Tracing.Insecure,
		SnapshotBlock: cfg.Blocks.Snapshot,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	a := newApp(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Server.MetricsAddr != "" {
		g.Go(func() error {
			return runMetricsServer(gCtx, cfg.Server.MetricsAddr, logger)
		})
	}

	g.Go(func() error {
		defer cancel()
		return job(gCtx, a)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return context.Canceled
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("snapshot exited with error", "error", err)
		return err
	}
	logger.Info("snapshot finished")
	return nil
}

func runMetricsServer(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}()

	logger.Info("metrics server started", "addr", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
