// Package generator runs the random search loop of a generator process.
//
// A generator repeatedly colors the graph at random and writes the conflict
// set to the ring buffer whenever it beats the best result this generator
// has sent so far. It stops when its context ends or when the ring reports
// that the supervisor is gone.
//
// Generators never learn about each other's results unless shared-best
// feedback is switched on, in which case the search budget is also capped by
// the best count the supervisor has published.
package generator
