package graph

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph/coloring"
	"gonum.org/v1/gonum/graph/simple"
)

// EdgeSeparator separates the two vertex ids of an edge token
const EdgeSeparator = "-"

var (
	ErrMalformedEdge = errors.New("graph: malformed edge")
	ErrSelfLoop      = errors.New("graph: self loop")
)

// ParseError reports an edge token that could not be parsed
type ParseError struct {
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse edge %q: %v", e.Token, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// VertexID is an externally assigned, non-negative vertex identifier
type VertexID int

// Edge is an unordered pair of distinct vertices
type Edge struct {
	A VertexID
	B VertexID
}

// Same reports whether e and o connect the same two vertices
func (e Edge) Same(o Edge) bool {
	return (e.A == o.A && e.B == o.B) || (e.A == o.B && e.B == o.A)
}

// String returns the wire form "a-b"
func (e Edge) String() string {
	return strconv.Itoa(int(e.A)) + EdgeSeparator + strconv.Itoa(int(e.B))
}

// key normalises the pair so that an edge and its reverse collide
func (e Edge) key() [2]VertexID {
	if e.A > e.B {
		return [2]VertexID{e.B, e.A}
	}
	return [2]VertexID{e.A, e.B}
}

// Graph is an immutable, deduplicated edge list
type Graph struct {
	vertices []VertexID
	edges    []Edge
	index    map[VertexID]int
	// pairs holds each edge as positions into vertices
	pairs [][2]int
}

// ParseEdge parses a single "<a>-<b>" token
func ParseEdge(token string) (Edge, error) {
	left, right, ok := strings.Cut(token, EdgeSeparator)
	if !ok {
		return Edge{}, &ParseError{Token: token, Err: ErrMalformedEdge}
	}

	a, err := parseVertex(left)
	if err != nil {
		return Edge{}, &ParseError{Token: token, Err: err}
	}
	b, err := parseVertex(right)
	if err != nil {
		return Edge{}, &ParseError{Token: token, Err: err}
	}
	if a == b {
		return Edge{}, &ParseError{Token: token, Err: ErrSelfLoop}
	}

	return Edge{A: a, B: b}, nil
}

func parseVertex(s string) (VertexID, error) {
	if s == "" {
		return 0, ErrMalformedEdge
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: vertex %q is not a non-negative integer", ErrMalformedEdge, s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedEdge, err)
	}
	return VertexID(n), nil
}

// Build parses every token and returns the deduplicated graph.
// Vertices and edges keep first-seen order.
func Build(tokens []string) (*Graph, error) {
	g := &Graph{
		vertices: make([]VertexID, 0, 2*len(tokens)),
		edges:    make([]Edge, 0, len(tokens)),
		index:    make(map[VertexID]int, 2*len(tokens)),
		pairs:    make([][2]int, 0, len(tokens)),
	}
	seen := make(map[[2]VertexID]struct{}, len(tokens))

	for _, token := range tokens {
		e, err := ParseEdge(token)
		if err != nil {
			return nil, err
		}

		if _, dup := seen[e.key()]; dup {
			continue
		}
		seen[e.key()] = struct{}{}

		g.edges = append(g.edges, e)
		g.pairs = append(g.pairs, [2]int{g.addVertex(e.A), g.addVertex(e.B)})
	}

	return g, nil
}

func (g *Graph) addVertex(id VertexID) int {
	if pos, ok := g.index[id]; ok {
		return pos
	}
	pos := len(g.vertices)
	g.vertices = append(g.vertices, id)
	g.index[id] = pos
	return pos
}

// Vertices returns vertex ids in first-seen order. The slice must not be modified.
func (g *Graph) Vertices() []VertexID {
	return g.vertices
}

// Edges returns the deduplicated edges in input order. The slice must not be modified.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// NumVertices returns the number of distinct vertices
func (g *Graph) NumVertices() int {
	return len(g.vertices)
}

// NumEdges returns the number of distinct edges
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// Index returns the dense position of id
func (g *Graph) Index(id VertexID) (int, bool) {
	pos, ok := g.index[id]
	return pos, ok
}

// Endpoints returns the dense vertex positions of the i-th edge
func (g *Graph) Endpoints(i int) (int, int) {
	p := g.pairs[i]
	return p[0], p[1]
}

// Undirected returns a gonum view of the graph keyed by vertex id
func (g *Graph) Undirected() *simple.UndirectedGraph {
	u := simple.NewUndirectedGraph()
	for _, id := range g.vertices {
		u.AddNode(simple.Node(id))
	}
	for _, e := range g.edges {
		u.SetEdge(simple.Edge{F: simple.Node(e.A), T: simple.Node(e.B)})
	}
	return u
}

// ColorUpperBound returns the number of colors the DSatur heuristic needs.
// A result of 3 or less proves the graph is 3-colorable.
func (g *Graph) ColorUpperBound() int {
	if len(g.vertices) == 0 {
		return 0
	}
	k, _, err := coloring.Dsatur(g.Undirected(), nil)
	if err != nil {
		return -1
	}
	return k
}

// ChromaticNumber computes the exact chromatic number with branch and bound.
// If ctx ends first, the best upper bound found so far is returned with ctx's error.
func (g *Graph) ChromaticNumber(ctx context.Context) (int, error) {
	if len(g.vertices) == 0 {
		return 0, nil
	}
	k, _, err := coloring.DsaturExact(ctx, g.Undirected())
	return k, err
}
