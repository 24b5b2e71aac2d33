package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

// statusClientClosedRequest reports work abandoned because its caller went away.
const statusClientClosedRequest = 499

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalid, apperr.KindUnsupportedKind:
		return http.StatusBadRequest
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindTransientIO, apperr.KindStaging:
		return http.StatusBadGateway
	case apperr.KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the standard error body for err.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	body := gin.H{
		"error": err.Error(),
		"kind":  kind,
	}
	if subject := apperr.SubjectOf(err); subject != "" {
		body["subject"] = subject
	}
	var e *apperr.Error
	if errors.As(err, &e) && e.Diagnostics != "" {
		body["diagnostics"] = e.Diagnostics
	}
	c.AbortWithStatusJSON(StatusFor(kind), body)
}

// badRequest reports a malformed request body.
func badRequest(c *gin.Context, op string, err error) {
	respondError(c, apperr.New(apperr.KindInvalid, op, "", err))
}
