package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/gin-gonic/gin"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

// NewHealthHandler takes a nil db when running on the in-memory store.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Check(ctx *gin.Context) {
	if h.db == nil {
		ctx.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Store: "memory"})
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), pingTimeout)
	defer cancel()
	if err := h.db.Ping(pingCtx); err != nil {
		slog.Warn("Health check failed", "error", err)
		ctx.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "unavailable", Store: "postgres"})
		return
	}
	ctx.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Store: "postgres"})
}
