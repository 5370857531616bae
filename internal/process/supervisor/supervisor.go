package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/threecolor/internal/domain/solver"
	"github.com/GriffinCanCode/threecolor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threecolor/internal/ipc/ring"
	"github.com/GriffinCanCode/threecolor/internal/logging"
	"github.com/GriffinCanCode/threecolor/internal/shared/id"
)

// Outcome tells why Run returned
type Outcome int

const (
	// OutcomeInterrupted means the context ended before a perfect coloring arrived
	OutcomeInterrupted Outcome = iota
	// OutcomeColorable means a candidate with no removed edges arrived
	OutcomeColorable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeColorable:
		return "colorable"
	default:
		return "interrupted"
	}
}

// Source is the read side of the ring buffer
type Source interface {
	Get(ctx context.Context) ([]byte, error)
}

// BestSink receives the best removal count seen so far
type BestSink interface {
	PublishBest(n int) bool
}

// Options configures a supervisor
type Options struct {
	Name    string
	Output  io.Writer
	Logger  *logging.Logger
	Metrics *monitoring.Metrics

	// WarnLimit and WarnBurst bound Warn-level logging of bad frames
	WarnLimit rate.Limit
	WarnBurst int
}

// Supervisor collects candidates and decides when the search is over
type Supervisor struct {
	id      id.SupervisorID
	name    string
	source  Source
	publish BestSink
	out     io.Writer
	log     *logging.Logger
	metrics *monitoring.Metrics
	warn    *rate.Limiter

	mu       sync.RWMutex
	best     int
	frames   int
	invalid  int
	lastSeen time.Time
}

// New creates a supervisor reading from source. If source also implements
// BestSink, every improvement is published back to it.
func New(source Source, opts Options) *Supervisor {
	if opts.Name == "" {
		opts.Name = "supervisor"
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.WarnLimit == 0 {
		opts.WarnLimit = rate.Every(time.Second)
	}
	if opts.WarnBurst == 0 {
		opts.WarnBurst = 5
	}

	supID := id.NewSupervisorID()
	s := &Supervisor{
		id:      supID,
		name:    opts.Name,
		source:  source,
		out:     opts.Output,
		log:     opts.Logger.With(zap.Stringer("supervisor_id", supID)),
		metrics: opts.Metrics,
		warn:    rate.NewLimiter(opts.WarnLimit, opts.WarnBurst),
		best:    -1,
	}
	if publish, ok := source.(BestSink); ok {
		s.publish = publish
	}
	return s
}

// ID returns the supervisor's instance id
func (s *Supervisor) ID() id.SupervisorID {
	return s.id
}

// Run reads candidates until a perfect coloring arrives or ctx ends.
// Errors are returned only for failures of the ring itself.
func (s *Supervisor) Run(ctx context.Context) (Outcome, error) {
	s.log.Info("Supervisor started")

	for {
		payload, err := s.source.Get(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			s.log.Info("Supervisor interrupted", zap.Int("frames", s.Frames()))
			return OutcomeInterrupted, nil
		case errors.Is(err, ring.ErrMalformedFrame):
			s.anomaly("Discarded malformed frame", zap.Error(err))
			continue
		default:
			s.log.Error("Failed to read from ring", zap.Error(err))
			return OutcomeInterrupted, fmt.Errorf("read candidate: %w", err)
		}

		if s.Handle(payload) {
			s.log.Info("Supervisor finished", zap.Int("frames", s.Frames()))
			return OutcomeColorable, nil
		}
	}
}

// Handle reports one payload and returns true if it ends the search
func (s *Supervisor) Handle(payload []byte) bool {
	sol, err := solver.ParseSolution(payload)
	if err != nil {
		s.mu.Lock()
		s.invalid++
		s.mu.Unlock()
		s.metrics.RecordSolutionReceived(monitoring.OutcomeInvalid)
		s.anomaly("Got invalid solution", zap.ByteString("payload", payload), zap.Error(err))
		return false
	}

	n := sol.Len()
	improved := s.record(n)
	if improved && s.publish != nil {
		s.publish.PublishBest(n)
	}

	if sol.Colorable() {
		s.metrics.RecordSolutionReceived(monitoring.OutcomeColorable)
		fmt.Fprintf(s.out, "[%s] The graph is 3-colorable!\n", s.name)
		return true
	}

	s.metrics.RecordSolutionReceived(monitoring.OutcomePartial)
	fmt.Fprintf(s.out, "[%s] Solution with %d edges: %s\n", s.name, n, sol)
	s.log.Debug("Received solution", zap.Int("removed", n), zap.Bool("improved", improved))
	return false
}

// record counts a decoded frame and reports whether it beat the best so far
func (s *Supervisor) record(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	s.lastSeen = time.Now()
	if s.best >= 0 && n >= s.best {
		return false
	}
	s.best = n
	s.metrics.SetBestRemoved(n)
	return true
}

func (s *Supervisor) anomaly(msg string, fields ...zap.Field) {
	if s.warn.Allow() {
		s.log.Warn(msg, fields...)
		return
	}
	s.log.Debug(msg, fields...)
}

// Best returns the fewest removed edges seen so far
func (s *Supervisor) Best() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.best, s.best >= 0
}

// Frames returns the number of decoded candidates
func (s *Supervisor) Frames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// Snapshot is the supervisor state shown by the health endpoint
type Snapshot struct {
	Best     int       `json:"best"`
	Frames   int       `json:"frames"`
	Invalid  int       `json:"invalid"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// Snapshot returns the current counters
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Best:     s.best,
		Frames:   s.frames,
		Invalid:  s.invalid,
		LastSeen: s.lastSeen,
	}
}
