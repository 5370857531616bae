package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/threecolor/internal/config"
	"github.com/GriffinCanCode/threecolor/internal/domain/graph"
	"github.com/GriffinCanCode/threecolor/internal/domain/solver"
	"github.com/GriffinCanCode/threecolor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threecolor/internal/infrastructure/server"
	"github.com/GriffinCanCode/threecolor/internal/ipc/ring"
	"github.com/GriffinCanCode/threecolor/internal/logging"
	"github.com/GriffinCanCode/threecolor/internal/process/generator"
)

// chromaticTimeout bounds the exact chromatic number search at startup
const chromaticTimeout = 250 * time.Millisecond

func main() {
	os.Exit(run())
}

func run() int {
	prog := filepath.Base(os.Args[0])

	// Parse flags
	name := flag.String("name", "", "Ring name (overrides COLOR_SHM_NAME)")
	dir := flag.String("dir", "", "Shared memory directory (overrides COLOR_SHM_DIR)")
	seed := flag.Uint64("seed", 0, "Solver seed, 0 derives one (overrides COLOR_SEED)")
	budget := flag.Int("budget", 0, "Initial removal budget (overrides COLOR_INITIAL_BUDGET)")
	sharedBest := flag.Bool("shared-best", false, "Cap the budget by the supervisor's best (overrides COLOR_SHARED_BEST)")
	metricsAddr := flag.String("metrics", "", "Serve /metrics and /health on this address (overrides METRICS_ADDR)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "SYNOPSIS: %s [flags] vertex1-vertex2...\n", prog)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "[%s] ERROR: No edges specified.\n  SYNOPSIS: %s vertex1-vertex2...\n", prog, prog)
		return 1
	}

	g, err := graph.Build(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s] ERROR: Could not parse edge list: %v\n  SYNOPSIS: %s vertex1-vertex2...\n", prog, err, prog)
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
	if *seed != 0 {
		cfg.Search.Seed = *seed
	}
	if *budget > 0 {
		cfg.Search.InitialBudget = *budget
	}
	if *sharedBest {
		cfg.Search.SharedBest = true
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

	if cfg.Search.Seed == 0 {
		cfg.Search.Seed = uint64(time.Now().UnixNano()) ^ uint64(os.Getpid())<<32
	}
	describeGraph(logger, g, cfg.Search.Seed)

	reg := monitoring.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	r, err := ring.Attach(ring.Options{
		Dir:          cfg.IPC.Dir,
		Name:         cfg.IPC.Name,
		PollInterval: cfg.IPC.PollInterval,
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		logger.Error("Could not open shared memory", zap.Error(err))
		return 1
	}

	gen := generator.New(g, solver.NewSeeded(cfg.Search.Seed), r, generator.Options{
		Name:          prog,
		InitialBudget: cfg.Search.InitialBudget,
		SharedBest:    cfg.Search.SharedBest,
		IdleInterval:  cfg.IPC.PollInterval,
		Logger:        logger,
		Metrics:       metrics,
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

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		return gen.Run(egctx)
	})

	if cfg.Metrics.Enabled() {
		srv := server.New(server.Config{
			Addr:        cfg.Metrics.Addr,
			Gatherer:    reg,
			Metrics:     metrics,
			Logger:      logger,
			Development: cfg.Logging.Development,
		}, r, nil)
		eg.Go(func() error {
			return srv.Run(egctx)
		})
	}

	code := 0
	if err := eg.Wait(); err != nil {
		logger.Error("Buffer could not be written", zap.Error(err))
		code = 1
	}
	if err := r.Shutdown(); err != nil {
		logger.Error("Failed to detach from buffer", zap.Error(err))
		code = 1
	}
	return code
}

// describeGraph logs what is known about the colorability of g up front
func describeGraph(logger *logging.Logger, g *graph.Graph, seed uint64) {
	fields := []zap.Field{
		zap.Int("vertices", g.NumVertices()),
		zap.Int("edges", g.NumEdges()),
		zap.Uint64("seed", seed),
		zap.Int("dsatur_colors", g.ColorUpperBound()),
	}

	ctx, cancel := context.WithTimeout(context.Background(), chromaticTimeout)
	defer cancel()

	chromatic, err := g.ChromaticNumber(ctx)
	switch {
	case err == nil:
		fields = append(fields, zap.Int("chromatic_number", chromatic))
	case errors.Is(err, context.DeadlineExceeded):
		fields = append(fields, zap.Int("chromatic_upper_bound", chromatic))
	default:
		fields = append(fields, zap.NamedError("chromatic_error", err))
	}
	logger.Info("Graph loaded", fields...)

	if err == nil && chromatic > solver.NumColors {
		logger.Warn("Graph is not 3-colorable; no generator can report a perfect coloring",
			zap.Int("chromatic_number", chromatic))
	}
}
