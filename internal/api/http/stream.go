package http

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/events"
)

// EventFilter builds the observer filter from ?environment=.
func EventFilter(c *gin.Context) events.Filter {
	if envID := c.Query("environment"); envID != "" {
		return events.ForEnvironment(envID)
	}
	return nil
}

// Events streams events as Server-Sent Events
func (h *Handlers) Events(c *gin.Context) {
	sub := h.broadcaster.Subscribe(h.eventBuffer, EventFilter(c))
	defer sub.Close()

	log := h.logger.With(zap.String("subscription", sub.ID()))
	log.Debug("sse observer connected", zap.String("remote", c.ClientIP()))

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.SSEvent("ready", gin.H{"subscription": sub.ID()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				log.Debug("sse observer evicted")
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
	log.Debug("sse observer disconnected")
}
