// Command supervisor creates the shared ring buffer and collects candidate
// colorings from generator processes until one of them removes no edges.
//
// Usage:
//
//	supervisor [-name ring] [-dir /dev/shm] [-metrics :9100] [-dev]
//
// The supervisor exits 0 when the graph turns out 3-colorable or when it is
// interrupted, and 1 when the ring cannot be created or fails.
package main
