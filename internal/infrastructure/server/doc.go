// Package server exposes the supervisor's optional HTTP endpoint.
//
// Routes:
//   - GET /health  ring fill level and search progress as JSON
//   - GET /metrics Prometheus exposition of the process registry
//
// The endpoint is off unless METRICS_ADDR is set. It runs next to the
// supervisor loop and stops when its context ends.
//
// Example Usage:
//
//	srv := server.New(server.Config{Addr: ":9100", Gatherer: reg}, r, sup)
//	g.Go(func() error { return srv.Run(ctx) })
package server
