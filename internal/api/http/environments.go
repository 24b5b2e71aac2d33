package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/environment"
)

// ListEnvironments lists every environment in creation order
func (h *Handlers) ListEnvironments(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.List())
}

// CreateEnvironment registers a stopped environment
func (h *Handlers) CreateEnvironment(c *gin.Context) {
	var req environment.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "create", err)
		return
	}

	env, err := h.store.Create(req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("environment created",
		zap.String("environment", env.ID),
		zap.String("kind", string(env.Kind)),
		zap.String("request_id", c.GetString("request_id")),
	)
	c.JSON(http.StatusCreated, env)
}

// GetEnvironment returns one environment
func (h *Handlers) GetEnvironment(c *gin.Context) {
	env, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, env)
}

// UpdateEnvironment merges the provided fields
func (h *Handlers) UpdateEnvironment(c *gin.Context) {
	var patch environment.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "update", err)
		return
	}

	env, err := h.store.Update(c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, env)
}

// DeleteEnvironment stops and removes an environment
func (h *Handlers) DeleteEnvironment(c *gin.Context) {
	if err := h.manager.Destroy(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StartEnvironment spawns the backing process
func (h *Handlers) StartEnvironment(c *gin.Context) {
	env, err := h.manager.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":      env.Status,
		"environment": env,
	})
}

// StopEnvironment terminates the backing process
func (h *Handlers) StopEnvironment(c *gin.Context) {
	env, err := h.manager.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      env.Status,
		"environment": env,
	})
}

// EnvironmentResources samples the backing process's CPU and memory
func (h *Handlers) EnvironmentResources(c *gin.Context) {
	res, err := h.manager.Resources(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
