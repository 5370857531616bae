package solver

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/threecolor/internal/domain/graph"
)

// PairSeparator separates removed edges in the encoded payload
const PairSeparator = " "

// Solution is the set of edges one solve attempt would remove
type Solution struct {
	Removed []graph.Edge
}

// Len returns the number of removed edges
func (s Solution) Len() int {
	return len(s.Removed)
}

// Colorable reports whether no edge has to be removed
func (s Solution) Colorable() bool {
	return len(s.Removed) == 0
}

// String returns the payload form "a-b c-d"
func (s Solution) String() string {
	var sb strings.Builder
	for i, e := range s.Removed {
		if i > 0 {
			sb.WriteString(PairSeparator)
		}
		sb.WriteString(e.String())
	}
	return sb.String()
}

// Encode returns the payload bytes
func (s Solution) Encode() []byte {
	return []byte(s.String())
}

// ParseSolution decodes a payload produced by Encode
func ParseSolution(payload []byte) (Solution, error) {
	text := string(payload)
	if text == "" {
		return Solution{}, nil
	}

	tokens := strings.Split(text, PairSeparator)
	removed := make([]graph.Edge, 0, len(tokens))
	for _, token := range tokens {
		e, err := graph.ParseEdge(token)
		if err != nil {
			return Solution{}, fmt.Errorf("decode solution: %w", err)
		}
		removed = append(removed, e)
	}
	return Solution{Removed: removed}, nil
}
