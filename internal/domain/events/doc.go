// Package events implements the publish/subscribe fan-out that carries
// process output, lifecycle transitions and acquisition progress to every
// connected observer. Events are not persisted and are never replayed.
package events
