package solver

import (
	"math/rand/v2"

	"github.com/GriffinCanCode/threecolor/internal/domain/graph"
)

// Color is one of the three vertex labels
type Color uint8

const (
	ColorRed Color = iota + 1
	ColorGreen
	ColorBlue
)

// NumColors is the size of the palette
const NumColors = 3

// Unbounded disables the early exit of Solve
const Unbounded = 0

// Solver assigns random colorings. It is not safe for concurrent use.
type Solver struct {
	rng    *rand.Rand
	colors []Color
}

// New creates a solver drawing from src
func New(src rand.Source) *Solver {
	return &Solver{rng: rand.New(src)}
}

// NewSeeded creates a solver with a deterministic PCG source
func NewSeeded(seed uint64) *Solver {
	return New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Solve colors g at random and returns the conflicting edges.
// Collection stops once budget edges were found; budget <= 0 scans every edge.
func (s *Solver) Solve(g *graph.Graph, budget int) Solution {
	s.colorize(g.NumVertices())
	return s.conflicts(g, budget)
}

// Colors returns the coloring of the last Solve call, indexed by vertex position
func (s *Solver) Colors() []Color {
	return s.colors
}

func (s *Solver) colorize(n int) {
	if cap(s.colors) < n {
		s.colors = make([]Color, n)
	}
	s.colors = s.colors[:n]
	for i := range s.colors {
		s.colors[i] = Color(1 + s.rng.IntN(NumColors))
	}
}

func (s *Solver) conflicts(g *graph.Graph, budget int) Solution {
	var removed []graph.Edge
	edges := g.Edges()
	for i := range edges {
		if budget > 0 && len(removed) >= budget {
			break
		}
		a, b := g.Endpoints(i)
		if s.colors[a] == s.colors[b] {
			removed = append(removed, edges[i])
		}
	}
	return Solution{Removed: removed}
}
