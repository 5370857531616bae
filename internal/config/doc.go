// Package config provides 12-factor configuration for the supervisor and
// generator processes.
//
// Configuration is loaded from environment variables with sensible defaults.
// Command-line flags in cmd/ can override single values.
//
// Configuration Sections:
//   - IPC: shared memory directory, ring name and wait slicing
//   - Search: generator budget, solver seed and shared-best feedback
//   - Logging: log level and output format
//   - Metrics: optional HTTP endpoint for /metrics and /health
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	r, err := ring.Attach(ring.Options{Dir: cfg.IPC.Dir, Name: cfg.IPC.Name})
//
// Environment Variables:
//   - COLOR_SHM_DIR, COLOR_SHM_NAME, COLOR_POLL_INTERVAL
//   - COLOR_INITIAL_BUDGET, COLOR_SEED, COLOR_SHARED_BEST
//   - LOG_LEVEL, LOG_DEV
//   - METRICS_ADDR
package config
