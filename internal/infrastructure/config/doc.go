// Package config provides 12-factor configuration management for the MixOS backend.
//
// Configuration is loaded from environment variables with sensible defaults,
// after an optional dotenv file (ENV_FILE, default ".env"). CLI flags can
// override the server address and log mode.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Storage: downloads and data directories, component manifest
//   - Fetch: download retry, timeout and backoff policy
//   - Stage: archive extraction mode and timeout
//   - Lifecycle: backing process binaries and stop grace
//   - Events: observer send timeout and queue length
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
