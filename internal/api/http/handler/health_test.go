package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func checkHealth(t *testing.T, db Pinger) (int, dto.HealthResponse) {
	t.Helper()
	r := gin.New()
	r.GET("/health", NewHealthHandler(db).Check)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestHealthCheck(t *testing.T) {
	code, resp := checkHealth(t, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, dto.HealthResponse{Status: "ok", Store: "memory"}, resp)

	code, resp = checkHealth(t, pingFunc(func(context.Context) error { return nil }))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "postgres", resp.Store)

	code, resp = checkHealth(t, pingFunc(func(context.Context) error { return errors.New("connection refused") }))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", resp.Status)
}
