package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/EternisAI/netboot/internal/boot"
	"github.com/EternisAI/netboot/internal/images"
	"github.com/gin-gonic/gin"
)

const maxBlockSize = 4 * 1024 * 1024

// BootHandler is the boundary used by the DHCP/TFTP transport.
type BootHandler struct {
	coordinator *boot.Coordinator
	images      *images.Service
}

func NewBootHandler(coordinator *boot.Coordinator, imageService *images.Service) *BootHandler {
	return &BootHandler{
		coordinator: coordinator,
		images:      imageService,
	}
}

func (h *BootHandler) GetTarget(ctx *gin.Context) {
	target, err := h.coordinator.BootTarget(ctx.Request.Context(), ctx.Param("mac"))
	if err != nil {
		respondError(ctx, "Failed to resolve boot target", err)
		return
	}
	ctx.JSON(http.StatusOK, target)
}

func (h *BootHandler) ReportEvent(ctx *gin.Context) {
	var req dto.BootEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.coordinator.ReportBootEvent(ctx.Request.Context(), req.MacAddress, boot.Event(req.Event), req.IPAddress)
	if err != nil {
		respondError(ctx, "Failed to report boot event", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

// WriteBlock records the raw request body at ?offset= in the image overlay.
func (h *BootHandler) WriteBlock(ctx *gin.Context) {
	offset, err := strconv.ParseInt(ctx.Query("offset"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
		return
	}

	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxBlockSize)
	data, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "block too large"})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if err := h.images.Write(ctx.Request.Context(), ctx.Param("id"), offset, data); err != nil {
		respondError(ctx, "Failed to write overlay block", err)
		return
	}
	ctx.JSON(http.StatusOK, dto.WriteResponse{Offset: offset, Length: len(data)})
}

func (h *BootHandler) ReadContent(ctx *gin.Context) {
	data, err := h.images.ReadContent(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, "Failed to read image content", err)
		return
	}
	ctx.Data(http.StatusOK, "application/octet-stream", data)
}
