// Package graph provides the edge-list graph model used by the colouring search.
//
// A Graph is built once per process from "<a>-<b>" tokens (usually argv) and is
// read-only afterwards, so a single instance can be shared by any number of
// solver calls without locking.
//
// Ordering:
//   - Vertices keep the order in which their id was first seen
//   - Edges keep input order; an edge and its reverse are the same edge
//
// Example Usage:
//
//	g, err := graph.Build([]string{"0-1", "1-2", "2-0"})
//	if err != nil {
//		return err
//	}
//	fmt.Println(g.NumVertices(), g.NumEdges()) // 3 3
package graph
