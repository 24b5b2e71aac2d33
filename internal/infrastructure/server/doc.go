// Package server wires configuration, domain services and the HTTP router
// into a runnable backend.
package server
