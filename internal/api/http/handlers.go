package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/component"
	"github.com/GriffinCanCode/MixOS/backend/internal/domain/environment"
	"github.com/GriffinCanCode/MixOS/backend/internal/domain/events"
	"github.com/GriffinCanCode/MixOS/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/monitoring"
)

const (
	serviceName    = "MixOS backend"
	serviceVersion = "1.0.0"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	store       *environment.Store
	manager     *lifecycle.Manager
	pipeline    *component.Pipeline
	prober      *component.Prober
	broadcaster *events.Broadcaster
	metrics     *monitoring.Metrics
	logger      *zap.Logger

	eventBuffer int
	heartbeat   time.Duration
}

// Deps are the collaborators the handlers serve.
type Deps struct {
	Store       *environment.Store
	Manager     *lifecycle.Manager
	Pipeline    *component.Pipeline
	Prober      *component.Prober
	Broadcaster *events.Broadcaster
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger

	// EventBuffer is the per-observer queue length for /api/events.
	EventBuffer int
	// Heartbeat is the SSE keepalive interval.
	Heartbeat time.Duration
}

// NewHandlers creates a new handler set
func NewHandlers(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Heartbeat <= 0 {
		d.Heartbeat = 15 * time.Second
	}
	return &Handlers{
		store:       d.Store,
		manager:     d.Manager,
		pipeline:    d.Pipeline,
		prober:      d.Prober,
		broadcaster: d.Broadcaster,
		metrics:     d.Metrics,
		logger:      d.Logger,
		eventBuffer: d.EventBuffer,
		heartbeat:   d.Heartbeat,
	}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	snap := h.metrics.GetSnapshot()

	ready := 0
	for _, s := range h.pipeline.Statuses() {
		if s.State == component.StateReady {
			ready++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"environments": gin.H{
			"total":   h.store.Len(),
			"running": snap.RunningEnvironments,
		},
		"components": gin.H{
			"total": h.pipeline.Catalog().Len(),
			"ready": ready,
		},
		"observers": h.broadcaster.Count(),
		"requests": gin.H{
			"total":        snap.TotalRequests,
			"errors":       snap.TotalErrors,
			"avgLatencyMs": snap.AvgLatencyMS,
		},
		"uptimeSeconds": snap.UptimeSeconds,
	})
}
