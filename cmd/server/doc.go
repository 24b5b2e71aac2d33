// Package main is the entry point for the MixOS backend server.
//
// The server acquires operating system components (kernel, root
// filesystem, initramfs, tooling), runs sandboxed environments on top of
// them, and streams their output to connected clients.
//
// The server provides:
//   - REST API for environments and component downloads
//   - WebSocket (/stream) and Server-Sent Events (/api/events) streams
//   - Prometheus metrics on /metrics
//   - Rate limiting and request tracing
//
// Configuration:
//   - Environment variables (12-factor), optionally from a .env file
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 5000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
