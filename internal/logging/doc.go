// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Logs go to stderr. Stdout is reserved for the solution reports the
// generator and supervisor print for the user.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Ring buffer created", zap.String("name", "threecolor"))
//	logger.Error("Failed to attach", zap.Error(err))
package logging
