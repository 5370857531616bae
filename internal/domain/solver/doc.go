// Package solver implements the randomized 3-coloring edge-removal heuristic
// and the textual encoding of its candidate solutions.
//
// Each Solve call colors every vertex uniformly at random with one of three
// colors and collects the edges whose endpoints share a color. The scan stops
// as soon as the collected set reaches the removal budget, so a result equal
// to the budget is a lower bound for that coloring, not its exact conflict count.
//
// Wire Format:
//   - Removed edges as "a-b" pairs separated by single spaces
//   - The empty payload means the coloring had no conflicts (3-colorable)
package solver
