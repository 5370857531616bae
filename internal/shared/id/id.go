// Package id provides ULID instance identifiers for log correlation.
//
// Every supervisor and generator process tags its log lines with its own id,
// so output from many generators sharing one terminal or one log sink can be
// told apart and ordered by start time:
//   - Lexicographic sortability: ids sort by creation time
//   - Prefixed types: "sup_" and "gen_" make the role obvious in logs
//   - Type safety: separate types prevent mixing roles
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// SupervisorID identifies a supervisor process instance
type SupervisorID string

// GeneratorID identifies a generator process instance
type GeneratorID string

// ============================================================================
// ID Prefixes
// ============================================================================

const (
	SupervisorPrefix = "sup"
	GeneratorPrefix  = "gen"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSupervisorID generates a new supervisor ID
func NewSupervisorID() SupervisorID {
	return SupervisorID(Default().GenerateWithPrefix(SupervisorPrefix))
}

// NewGeneratorID generates a new generator ID
func NewGeneratorID() GeneratorID {
	return GeneratorID(Default().GenerateWithPrefix(GeneratorPrefix))
}

func (id SupervisorID) String() string { return string(id) }
func (id GeneratorID) String() string  { return string(id) }

// ============================================================================
// Validation
// ============================================================================

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the creation time from a bare ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
