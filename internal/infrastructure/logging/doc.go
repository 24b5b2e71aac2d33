// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Components receive a named child logger (logger.Named("fetch")) so every
// line carries its origin. Components that sit behind library hooks, like
// the retrying HTTP client, use the Leveled adapter.
//
// Example Usage:
//
//	logger := logging.FromLevel("info", false)
//	logger.Info("Server starting", zap.String("port", "5000"))
//	logger.Error("Failed to stage component", zap.String("component", id), zap.Error(err))
package logging
