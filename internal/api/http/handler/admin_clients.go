package handler

import (
	"net/http"
	"strconv"

	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/EternisAI/netboot/internal/boot"
	"github.com/EternisAI/netboot/internal/clients"
	"github.com/EternisAI/netboot/internal/commands"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/EternisAI/netboot/internal/presence"
	"github.com/EternisAI/netboot/internal/stats"
	"github.com/gin-gonic/gin"
)

type AdminClientsHandler struct {
	clients     *clients.Service
	coordinator *boot.Coordinator
	presence    *presence.Tracker
	commands    *commands.Service
	stats       *stats.Service
}

func NewAdminClientsHandler(clientService *clients.Service, coordinator *boot.Coordinator, tracker *presence.Tracker, commandService *commands.Service, statsService *stats.Service) *AdminClientsHandler {
	return &AdminClientsHandler{
		clients:     clientService,
		coordinator: coordinator,
		presence:    tracker,
		commands:    commandService,
		stats:       statsService,
	}
}

func toClientResponse(c *models.Client) dto.ClientResponse {
	return dto.ClientResponse{
		ID:             c.ID,
		MacAddress:     c.HardwareAddress,
		Name:           c.Name,
		IPAddress:      c.NetworkAddress,
		ImageID:        c.ImageID,
		Persistent:     c.Persistent,
		BootMode:       string(c.BootMode),
		PostBootScript: c.PostBootScript,
		SystemInfo:     c.SystemInfo,
		Online:         c.Online,
		LastSeenAt:     c.LastSeenAt,
		LastBootAt:     c.LastBootAt,
		LastShutdownAt: c.LastShutdownAt,
		CreatedAt:      c.CreatedAt,
	}
}

func (h *AdminClientsHandler) CreateClient(ctx *gin.Context) {
	var req dto.CreateClientRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := h.clients.CreateClient(ctx.Request.Context(), clients.CreateInput{
		HardwareAddress: req.MacAddress,
		Name:            req.Name,
		NetworkAddress:  req.IPAddress,
		Persistent:      req.Persistent,
		BootMode:        models.BootMode(req.BootMode),
		PostBootScript:  req.PostBootScript,
	})
	if err != nil {
		respondError(ctx, "Failed to create client", err)
		return
	}
	ctx.JSON(http.StatusCreated, toClientResponse(client))
}

func (h *AdminClientsHandler) ListClients(ctx *gin.Context) {
	list, err := h.clients.ListClients(ctx.Request.Context())
	if err != nil {
		respondError(ctx, "Failed to list clients", err)
		return
	}
	responses := make([]dto.ClientResponse, len(list))
	for i, c := range list {
		responses[i] = toClientResponse(c)
	}
	ctx.JSON(http.StatusOK, dto.ListClientsResponse{Clients: responses, Count: len(responses)})
}

func (h *AdminClientsHandler) GetClient(ctx *gin.Context) {
	client, err := h.clients.GetClient(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, "Failed to get client", err)
		return
	}
	ctx.JSON(http.StatusOK, toClientResponse(client))
}

func (h *AdminClientsHandler) UpdateClient(ctx *gin.Context) {
	var req dto.UpdateClientRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := clients.UpdateInput{
		Name:           req.Name,
		Persistent:     req.Persistent,
		PostBootScript: req.PostBootScript,
	}
	if req.BootMode != nil {
		mode := models.BootMode(*req.BootMode)
		in.BootMode = &mode
	}

	client, err := h.clients.UpdateClient(ctx.Request.Context(), ctx.Param("id"), in)
	if err != nil {
		respondError(ctx, "Failed to update client", err)
		return
	}
	ctx.JSON(http.StatusOK, toClientResponse(client))
}

func (h *AdminClientsHandler) DeleteClient(ctx *gin.Context) {
	if err := h.clients.DeleteClient(ctx.Request.Context(), ctx.Param("id")); err != nil {
		respondError(ctx, "Failed to delete client", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *AdminClientsHandler) AssignImage(ctx *gin.Context) {
	var req dto.AssignImageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := h.coordinator.AssignImage(ctx.Request.Context(), ctx.Param("id"), req.ImageID)
	if err != nil {
		respondError(ctx, "Failed to assign image", err)
		return
	}
	ctx.JSON(http.StatusOK, toClientResponse(client))
}

func (h *AdminClientsHandler) ClearImage(ctx *gin.Context) {
	client, err := h.coordinator.ClearAssignment(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, "Failed to clear image assignment", err)
		return
	}
	ctx.JSON(http.StatusOK, toClientResponse(client))
}

func (h *AdminClientsHandler) RevokeToken(ctx *gin.Context) {
	if err := h.clients.Revoke(ctx.Request.Context(), ctx.Param("id")); err != nil {
		respondError(ctx, "Failed to revoke token", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

func (h *AdminClientsHandler) ReportStatus(ctx *gin.Context) {
	var req dto.ReportStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.presence.ReportStatus(ctx.Request.Context(), ctx.Param("id"), *req.Online, req.IPAddress); err != nil {
		respondError(ctx, "Failed to report status", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

func (h *AdminClientsHandler) EnqueueCommand(ctx *gin.Context) {
	var req dto.EnqueueCommandRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd, err := commands.Decode(req.Type, req.Data)
	if err != nil {
		respondError(ctx, "Failed to decode command", err)
		return
	}
	record, err := h.commands.Enqueue(ctx.Request.Context(), ctx.Param("id"), cmd)
	if err != nil {
		respondError(ctx, "Failed to enqueue command", err)
		return
	}
	ctx.JSON(http.StatusCreated, toCommandResponses([]*models.Command{record})[0])
}

func (h *AdminClientsHandler) ListCommands(ctx *gin.Context) {
	all := ctx.Query("all") == "true"
	list, err := h.commands.List(ctx.Request.Context(), ctx.Param("id"), all)
	if err != nil {
		respondError(ctx, "Failed to list commands", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.CommandsResponse{Commands: toCommandResponses(list)})
}

func (h *AdminClientsHandler) ListStats(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(stats.DefaultRecentLimit)))
	samples, err := h.stats.Recent(ctx.Request.Context(), ctx.Param("id"), limit)
	if err != nil {
		respondError(ctx, "Failed to list stats", err)
		return
	}
	result := make([]dto.StatsSample, len(samples))
	for i, s := range samples {
		result[i] = dto.StatsSample{
			RecordedAt:    s.RecordedAt,
			CPUUsage:      s.CPU,
			MemoryUsageMB: s.MemoryMB,
			NetworkRxMbps: s.RxMbps,
			NetworkTxMbps: s.TxMbps,
		}
	}
	ctx.JSON(http.StatusOK, dto.StatsResponse{Stats: result, Count: len(result)})
}
