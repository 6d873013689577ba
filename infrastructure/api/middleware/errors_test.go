package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/taxon/domain/pipeline"
)

func TestAPIError(t *testing.T) {
	err := NewAPIError(404, "resource not found", nil)

	assert.Equal(t, 404, err.Code())
	assert.Equal(t, "resource not found", err.Message())
	assert.Equal(t, "api error 404: resource not found", err.Error())
}

func TestAPIError_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewAPIError(500, "internal error", cause)

	assert.Equal(t, "api error 500: internal error: underlying error", err.Error())
	assert.Same(t, cause, err.Unwrap())
}

func TestAuthenticationError(t *testing.T) {
	err := NewAuthenticationError("invalid token")

	assert.Equal(t, "authentication failed: invalid token", err.Error())
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestServerError(t *testing.T) {
	err := NewServerError(503, "service unavailable")

	assert.Equal(t, 503, err.StatusCode())
	assert.Equal(t, "service unavailable", err.Message())
	assert.Equal(t, "server error 503: service unavailable", err.Error())
	assert.ErrorIs(t, err, ErrServer)
}

func TestErrors_CanBeWrapped(t *testing.T) {
	wrapped := fmt.Errorf("request failed: %w", NewAuthenticationError("token expired"))

	assert.ErrorIs(t, wrapped, ErrAuthentication)
	var target *AuthenticationError
	assert.ErrorAs(t, wrapped, &target)
}

func TestWriteError_StatusFromKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", fmt.Errorf("bad k: %w", pipeline.ErrConfiguration), http.StatusBadRequest},
		{"integrity", fmt.Errorf("no documents: %w", pipeline.ErrIntegrity), http.StatusUnprocessableEntity},
		{"unavailable", fmt.Errorf("store down: %w", pipeline.ErrUnavailable), http.StatusServiceUnavailable},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
		{"explicit", NewAPIError(http.StatusNotFound, "no such document", nil), http.StatusNotFound},
		{"authentication", NewAuthenticationError("no key"), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			w := httptest.NewRecorder()

			WriteError(w, req, tt.err, nil)

			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "application/vnd.api+json", w.Header().Get("Content-Type"))
			var body JSONAPIErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Len(t, body.Errors, 1)
			assert.Equal(t, fmt.Sprintf("%d", tt.want), body.Errors[0].Status)
			assert.NotEmpty(t, body.Errors[0].Detail)
		})
	}
}

func TestStatusForKind_Transient(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, StatusForKind(pipeline.KindTransient))
}
