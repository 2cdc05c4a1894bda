package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		expectCode int
		expectErr  string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "nope") }, http.StatusBadRequest, CodeBadRequest},
		{"unauthenticated", func(w http.ResponseWriter) { WriteUnauthenticated(w, "no token") }, http.StatusUnauthorized, CodeUnauthenticated},
		{"tenant required", WriteTenantRequired, http.StatusBadRequest, CodeTenantRequired},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "no") }, http.StatusForbidden, CodeForbidden},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "missing") }, http.StatusNotFound, CodeNotFound},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "in use") }, http.StatusConflict, CodeConflict},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, "oops") }, http.StatusInternalServerError, CodeInternal},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailable(w, "down") }, http.StatusServiceUnavailable, CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.expectCode, w.Code)
			assert.Equal(t, tt.expectErr, decodeError(t, w).Error)
		})
	}
}

func TestWritePermissionDenied(t *testing.T) {
	w := httptest.NewRecorder()

	WritePermissionDenied(w, "products", "delete")

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, CodeForbidden, resp.Error)
	assert.Equal(t, "products", resp.Module)
	assert.Equal(t, "delete", resp.Operation)
}

func TestWriteValidationErrors(t *testing.T) {
	w := httptest.NewRecorder()

	WriteValidationErrors(w, map[string]string{"name": "name is required"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, CodeValidation, resp.Error)
	assert.Equal(t, "name is required", resp.Details["name"])
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
