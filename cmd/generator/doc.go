// Command generator searches for 3-colorings of the graph given on the
// command line and reports improvements to a running supervisor.
//
// Usage:
//
//	generator [flags] 0-1 1-2 2-0
//
// The generator exits 0 when the supervisor goes away or it is interrupted,
// and 1 on a malformed edge list or when the ring cannot be attached.
package main
