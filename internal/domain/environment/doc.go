// Package environment holds the registry of environment records. The
// store owns the records; the lifecycle manager is the only writer of
// status, pid and lastError, through Mutate.
package environment
