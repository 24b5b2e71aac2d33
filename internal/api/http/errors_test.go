package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindInvalid, http.StatusBadRequest},
		{apperr.KindUnsupportedKind, http.StatusBadRequest},
		{apperr.KindTimeout, http.StatusGatewayTimeout},
		{apperr.KindTransientIO, http.StatusBadGateway},
		{apperr.KindStaging, http.StatusBadGateway},
		{apperr.KindCanceled, 499},
		{apperr.KindProcessSpawn, http.StatusInternalServerError},
		{apperr.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.kind))
		})
	}
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	staging := apperr.New(apperr.KindStaging, "stage", "kernel", errors.New("tar exited: exit status 2"))
	staging.Diagnostics = "tar: Unexpected EOF in archive"

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, staging)

	require.Equal(t, http.StatusBadGateway, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "staging", body["kind"])
	assert.Equal(t, "kernel", body["subject"])
	assert.Equal(t, "tar: Unexpected EOF in archive", body["diagnostics"])
	assert.Contains(t, body["error"], "stage kernel")

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	respondError(c, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal", body["kind"])
}
