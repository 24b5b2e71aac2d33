package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/tracing"
)

// ListDownloads lists the component catalog
func (h *Handlers) ListDownloads(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Catalog().List())
}

// TriggerDownload starts acquiring one component
func (h *Handlers) TriggerDownload(c *gin.Context) {
	ctx, _ := tracing.EnsureRequestID(c.Request.Context())

	status, err := h.pipeline.Trigger(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, status)
}

// DownloadStatuses reports progress for every component
func (h *Handlers) DownloadStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Statuses())
}

// DownloadStatus reports progress for one component
func (h *Handlers) DownloadStatus(c *gin.Context) {
	status, err := h.pipeline.Status(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ProbeDownload checks a component's URL without downloading it
func (h *Handlers) ProbeDownload(c *gin.Context) {
	result, err := h.prober.Probe(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunPipelineRequest selects the components of a pipeline run.
type RunPipelineRequest struct {
	IDs []string `json:"ids"`
}

// RunPipeline acquires the selected components, or the whole catalog, in
// the background
func (h *Handlers) RunPipeline(c *gin.Context) {
	var req RunPipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "run", err)
		return
	}

	ctx, _ := tracing.EnsureRequestID(c.Request.Context())
	if err := h.pipeline.RunAsync(ctx, req.IDs); err != nil {
		respondError(c, err)
		return
	}

	ids := req.IDs
	if len(ids) == 0 {
		for _, d := range h.pipeline.Catalog().List() {
			ids = append(ids, d.ID)
		}
	}
	c.JSON(http.StatusAccepted, gin.H{
		"started":    true,
		"components": ids,
	})
}
