package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/threecolor/internal/config"
	"github.com/GriffinCanCode/threecolor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threecolor/internal/infrastructure/server"
	"github.com/GriffinCanCode/threecolor/internal/ipc/ring"
	"github.com/GriffinCanCode/threecolor/internal/logging"
	"github.com/GriffinCanCode/threecolor/internal/process/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	prog := filepath.Base(os.Args[0])

	// Parse flags
	name := flag.String("name", "", "Ring name (overrides COLOR_SHM_NAME)")
	dir := flag.String("dir", "", "Shared memory directory (overrides COLOR_SHM_DIR)")
	metricsAddr := flag.String("metrics", "", "Serve /metrics and /health on this address (overrides METRICS_ADDR)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "[%s] ERROR: Too many arguments.\n  SYNOPSIS: %s [flags]\n", prog, prog)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s] ERROR: %v\n", prog, err)
		return 1
	}
	if *name != "" {
		cfg.IPC.Name = *name
	}
	if *dir != "" {
		cfg.IPC.Dir = *dir
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *dev {
		cfg.Logging.Development = true
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s] ERROR: %v\n", prog, err)
		return 1
	}
	defer logger.Sync()

	reg := monitoring.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	r, err := ring.Create(ring.Options{
		Dir:          cfg.IPC.Dir,
		Name:         cfg.IPC.Name,
		PollInterval: cfg.IPC.PollInterval,
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		logger.Error("Buffer with shared memory couldn't be opened", zap.Error(err))
		return 1
	}

	sup := supervisor.New(r, supervisor.Options{
		Name:    prog,
		Logger:  logger,
		Metrics: metrics,
	})

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Shutting down gracefully", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	var outcome supervisor.Outcome
	g.Go(func() error {
		// the endpoint has nothing left to report once the loop ends
		defer cancel()
		var err error
		outcome, err = sup.Run(gctx)
		return err
	})

	if cfg.Metrics.Enabled() {
		srv := server.New(server.Config{
			Addr:        cfg.Metrics.Addr,
			Gatherer:    reg,
			Metrics:     metrics,
			Logger:      logger,
			Development: cfg.Logging.Development,
		}, r, sup)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	runErr := g.Wait()

	code := 0
	if runErr != nil {
		logger.Error("Supervisor failed", zap.Error(runErr))
		code = 1
	}
	if err := r.Shutdown(); err != nil {
		logger.Error("Buffer with shared memory couldn't be closed", zap.Error(err))
		code = 1
	}

	logger.Info("Supervisor exiting",
		zap.Stringer("outcome", outcome),
		zap.Int("frames", sup.Frames()),
		zap.Int("exit_code", code))
	return code
}
