package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/threecolor/internal/domain/graph"
	"github.com/GriffinCanCode/threecolor/internal/domain/solver"
	"github.com/GriffinCanCode/threecolor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threecolor/internal/ipc/ring"
	"github.com/GriffinCanCode/threecolor/internal/logging"
	"github.com/GriffinCanCode/threecolor/internal/shared/id"
)

const (
	// DefaultInitialBudget is the removal count a new generator has to beat
	DefaultInitialBudget = 8

	defaultIdleInterval = 50 * time.Millisecond
)

// Sink is the write side of the ring buffer
type Sink interface {
	Put(ctx context.Context, payload []byte) error
	SupervisorAlive() bool
}

// BestSource exposes the best removal count published by the supervisor
type BestSource interface {
	SharedBest() (int, bool)
}

// Options configures a generator
type Options struct {
	Name          string
	InitialBudget int
	SharedBest    bool
	IdleInterval  time.Duration
	Output        io.Writer
	Logger        *logging.Logger
	Metrics       *monitoring.Metrics
}

// Generator searches for colorings and reports improvements
type Generator struct {
	id      id.GeneratorID
	name    string
	graph   *graph.Graph
	solver  *solver.Solver
	sink    Sink
	shared  BestSource
	idle    time.Duration
	out     io.Writer
	log     *logging.Logger
	metrics *monitoring.Metrics

	best     int
	sent     int
	attempts int
}

// New creates a generator that reports to sink
func New(g *graph.Graph, s *solver.Solver, sink Sink, opts Options) *Generator {
	if opts.Name == "" {
		opts.Name = "generator"
	}
	if opts.InitialBudget <= 0 {
		opts.InitialBudget = DefaultInitialBudget
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = defaultIdleInterval
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	genID := id.NewGeneratorID()
	gen := &Generator{
		id:      genID,
		name:    opts.Name,
		graph:   g,
		solver:  s,
		sink:    sink,
		idle:    opts.IdleInterval,
		out:     opts.Output,
		log:     opts.Logger.With(zap.Stringer("generator_id", genID)),
		metrics: opts.Metrics,
		best:    opts.InitialBudget,
	}
	if opts.SharedBest {
		if shared, ok := sink.(BestSource); ok {
			gen.shared = shared
		}
	}
	return gen
}

// ID returns the generator's instance id
func (gen *Generator) ID() id.GeneratorID {
	return gen.id
}

// Best returns the smallest removal count sent so far, or the initial budget
func (gen *Generator) Best() int {
	return gen.best
}

// Sent returns the number of candidates written to the sink
func (gen *Generator) Sent() int {
	return gen.sent
}

// Run loops until ctx is done or the supervisor goes away. Both are normal
// stops and return nil; only failures of the ring itself are returned.
func (gen *Generator) Run(ctx context.Context) error {
	gen.log.Info("Generator started",
		zap.Int("vertices", gen.graph.NumVertices()),
		zap.Int("edges", gen.graph.NumEdges()),
		zap.Int("initial_budget", gen.best),
		zap.Bool("shared_best", gen.shared != nil))

	for {
		if err := ctx.Err(); err != nil {
			gen.stopped("interrupted")
			return nil
		}
		if !gen.sink.SupervisorAlive() {
			gen.stopped("supervisor gone")
			return nil
		}

		if gen.budget() == 0 {
			// nothing beats a perfect coloring; wait for the supervisor to leave
			gen.sleep(ctx)
			continue
		}

		if _, err := gen.Step(ctx); err != nil {
			switch {
			case errors.Is(err, ring.ErrSupervisorGone):
				gen.stopped("supervisor gone")
				return nil
			case ctx.Err() != nil:
				gen.stopped("interrupted")
				return nil
			default:
				gen.log.Error("Failed to send solution", zap.Error(err))
				return err
			}
		}
	}
}

// Step runs one solve attempt and sends the result if it is an improvement
func (gen *Generator) Step(ctx context.Context) (bool, error) {
	budget := gen.budget()

	start := time.Now()
	sol := gen.solver.Solve(gen.graph, budget)
	gen.metrics.RecordSolve(time.Since(start))
	gen.attempts++

	if sol.Len() >= budget {
		return false, nil
	}

	if err := gen.sink.Put(ctx, sol.Encode()); err != nil {
		return false, err
	}

	gen.best = sol.Len()
	gen.sent++
	gen.metrics.IncSolutionsSent()

	fmt.Fprintf(gen.out, "[%s] Found solution with %d removed edges: %s\n", gen.name, sol.Len(), sol)
	gen.log.Debug("Sent improved solution",
		zap.Int("removed", sol.Len()),
		zap.Int("attempts", gen.attempts))
	return true, nil
}

// budget is the count a new candidate must beat
func (gen *Generator) budget() int {
	budget := gen.best
	if gen.shared != nil {
		if shared, ok := gen.shared.SharedBest(); ok && shared < budget {
			budget = shared
		}
	}
	return budget
}

func (gen *Generator) sleep(ctx context.Context) {
	timer := time.NewTimer(gen.idle)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (gen *Generator) stopped(reason string) {
	gen.log.Info("Generator stopped",
		zap.String("reason", reason),
		zap.Int("best", gen.best),
		zap.Int("sent", gen.sent),
		zap.Int("attempts", gen.attempts))
}
