package handler

import (
	"log/slog"
	"net/http"

	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/EternisAI/netboot/internal/api/http/middleware"
	"github.com/EternisAI/netboot/internal/clients"
	"github.com/EternisAI/netboot/internal/commands"
	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/EternisAI/netboot/internal/presence"
	"github.com/EternisAI/netboot/internal/stats"
	"github.com/gin-gonic/gin"
)

// ClientHandler serves the protocol spoken by the agent running on each
// fleet machine.
type ClientHandler struct {
	clients  *clients.Service
	presence *presence.Tracker
	commands *commands.Service
	stats    *stats.Service
	config   dto.AgentConfig
}

func NewClientHandler(clientService *clients.Service, tracker *presence.Tracker, commandService *commands.Service, statsService *stats.Service, config dto.AgentConfig) *ClientHandler {
	return &ClientHandler{
		clients:  clientService,
		presence: tracker,
		commands: commandService,
		stats:    statsService,
		config:   config,
	}
}

// sameClient rejects requests whose body names a client other than the
// token holder.
func sameClient(ctx *gin.Context, claimed string) bool {
	if claimed == ctx.GetString(middleware.ClientIDKey) {
		return true
	}
	slog.Warn("Client id does not match token",
		"claimed", claimed,
		"token_client_id", ctx.GetString(middleware.ClientIDKey))
	ctx.JSON(http.StatusForbidden, gin.H{"error": common.ErrIdentityMismatch.Error()})
	return false
}

func (h *ClientHandler) Register(ctx *gin.Context) {
	var req dto.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info := make(map[string]string, len(req.SystemInfo)+2)
	for k, v := range req.SystemInfo {
		info[k] = v
	}
	if req.Platform != "" {
		info["platform"] = req.Platform
	}
	if req.OSVersion != "" {
		info["os_version"] = req.OSVersion
	}

	result, err := h.clients.Register(ctx.Request.Context(), req.MacAddress, clients.RegisterInput{
		Hostname:       req.Hostname,
		NetworkAddress: req.IPAddress,
		SystemInfo:     info,
	})
	if err != nil {
		respondError(ctx, "Failed to register client", err)
		return
	}

	config := h.config
	config.HeartbeatInterval = int(h.presence.Config().HeartbeatInterval.Seconds())
	ctx.JSON(http.StatusOK, dto.RegisterResponse{
		ClientID:  result.Client.ID,
		AuthToken: result.Token,
		Config:    config,
	})
}

func (h *ClientHandler) Heartbeat(ctx *gin.Context) {
	var req dto.HeartbeatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !sameClient(ctx, req.ClientID) {
		return
	}

	if err := h.presence.Heartbeat(ctx.Request.Context(), req.ClientID, req.MacAddress, req.IPAddress); err != nil {
		respondError(ctx, "Failed to record heartbeat", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

func (h *ClientHandler) Stats(ctx *gin.Context) {
	var req dto.StatsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !sameClient(ctx, req.ClientID) {
		return
	}

	err := h.stats.Record(ctx.Request.Context(), req.ClientID, stats.Sample{
		CPU:      req.CPUUsage,
		MemoryMB: req.MemoryUsageMB,
		RxMbps:   req.NetworkRxMbps,
		TxMbps:   req.NetworkTxMbps,
	})
	if err != nil {
		respondError(ctx, "Failed to record stats", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

func (h *ClientHandler) ListCommands(ctx *gin.Context) {
	clientID := ctx.Query("client_id")
	if clientID == "" {
		clientID = ctx.GetString(middleware.ClientIDKey)
	}
	if !sameClient(ctx, clientID) {
		return
	}

	pending, err := h.commands.ListPending(ctx.Request.Context(), clientID)
	if err != nil {
		respondError(ctx, "Failed to list commands", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.CommandsResponse{Commands: toCommandResponses(pending)})
}

func (h *ClientHandler) AckCommand(ctx *gin.Context) {
	var req dto.AckRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !sameClient(ctx, req.ClientID) {
		return
	}

	if err := h.commands.Acknowledge(ctx.Request.Context(), ctx.Param("id"), req.ClientID); err != nil {
		respondError(ctx, "Failed to acknowledge command", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

func toCommandResponses(cmds []*models.Command) []dto.CommandResponse {
	result := make([]dto.CommandResponse, len(cmds))
	for i, c := range cmds {
		data := c.Payload
		if len(data) == 0 {
			data = []byte("{}")
		}
		result[i] = dto.CommandResponse{
			ID:             c.ID,
			Type:           c.Type,
			Data:           data,
			CreatedAt:      c.CreatedAt,
			AcknowledgedAt: c.AcknowledgedAt,
		}
	}
	return result
}
