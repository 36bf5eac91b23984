package handler

import (
	"net/http"

	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/EternisAI/netboot/internal/images"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/gin-gonic/gin"
)

type AdminImagesHandler struct {
	images *images.Service
}

func NewAdminImagesHandler(imageService *images.Service) *AdminImagesHandler {
	return &AdminImagesHandler{images: imageService}
}

func toImageResponse(i *models.Image) dto.ImageResponse {
	return dto.ImageResponse{
		ID:           i.ID,
		Name:         i.Name,
		Description:  i.Description,
		OSVersion:    i.OSVersion,
		SizeBytes:    i.SizeBytes,
		Checksum:     i.Checksum,
		Template:     i.Template,
		Locked:       i.Locked,
		OverlayState: string(i.OverlayState),
		CreatedAt:    i.CreatedAt,
		ModifiedAt:   i.ModifiedAt,
	}
}

func toPointResponse(p *models.RestorationPoint) dto.PointResponse {
	return dto.PointResponse{
		ID:          p.ID,
		ImageID:     p.ImageID,
		Name:        p.Name,
		Description: p.Description,
		Checksum:    p.Checksum,
		SizeBytes:   p.SizeBytes,
		CreatedAt:   p.CreatedAt,
	}
}

func (h *AdminImagesHandler) CreateImage(ctx *gin.Context) {
	var req dto.CreateImageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	image, err := h.images.CreateImage(ctx.Request.Context(), images.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		OSVersion:   req.OSVersion,
		SizeBytes:   req.SizeBytes,
		Template:    req.Template,
		Content:     req.Content,
	})
	if err != nil {
		respondError(ctx, "Failed to create image", err)
		return
	}
	ctx.JSON(http.StatusCreated, toImageResponse(image))
}

func (h *AdminImagesHandler) ListImages(ctx *gin.Context) {
	list, err := h.images.ListImages(ctx.Request.Context())
	if err != nil {
		respondError(ctx, "Failed to list images", err)
		return
	}
	responses := make([]dto.ImageResponse, len(list))
	for i, img := range list {
		responses[i] = toImageResponse(img)
	}
	ctx.JSON(http.StatusOK, dto.ListImagesResponse{Images: responses, Count: len(responses)})
}

func (h *AdminImagesHandler) GetImage(ctx *gin.Context) {
	image, err := h.images.GetImage(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, "Failed to get image", err)
		return
	}
	ctx.JSON(http.StatusOK, toImageResponse(image))
}

func (h *AdminImagesHandler) UpdateImage(ctx *gin.Context) {
	var req dto.UpdateImageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	image, err := h.images.UpdateImage(ctx.Request.Context(), ctx.Param("id"), images.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		OSVersion:   req.OSVersion,
		Template:    req.Template,
		Locked:      req.Locked,
	})
	if err != nil {
		respondError(ctx, "Failed to update image", err)
		return
	}
	ctx.JSON(http.StatusOK, toImageResponse(image))
}

func (h *AdminImagesHandler) DeleteImage(ctx *gin.Context) {
	if err := h.images.DeleteImage(ctx.Request.Context(), ctx.Param("id")); err != nil {
		respondError(ctx, "Failed to delete image", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *AdminImagesHandler) CloneImage(ctx *gin.Context) {
	var req dto.CloneImageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	clone, err := h.images.Clone(ctx.Request.Context(), ctx.Param("id"), req.Name)
	if err != nil {
		respondError(ctx, "Failed to clone image", err)
		return
	}
	ctx.JSON(http.StatusCreated, toImageResponse(clone))
}

func (h *AdminImagesHandler) EnableOverlay(ctx *gin.Context) {
	image, err := h.images.EnableOverlay(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, "Failed to enable overlay", err)
		return
	}
	ctx.JSON(http.StatusOK, toImageResponse(image))
}

func (h *AdminImagesHandler) DisableOverlay(ctx *gin.Context) {
	var req dto.DisableOverlayRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	image, err := h.images.DisableOverlay(ctx.Request.Context(), ctx.Param("id"), req.Commit)
	if err != nil {
		respondError(ctx, "Failed to disable overlay", err)
		return
	}
	ctx.JSON(http.StatusOK, toImageResponse(image))
}

func (h *AdminImagesHandler) CreatePoint(ctx *gin.Context) {
	var req dto.CreatePointRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	point, err := h.images.CreateRestorationPoint(ctx.Request.Context(), ctx.Param("id"), req.Name, req.Description)
	if err != nil {
		respondError(ctx, "Failed to create restoration point", err)
		return
	}
	ctx.JSON(http.StatusCreated, toPointResponse(point))
}

func (h *AdminImagesHandler) ListPoints(ctx *gin.Context) {
	points, err := h.images.ListPoints(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, "Failed to list restoration points", err)
		return
	}
	responses := make([]dto.PointResponse, len(points))
	for i, p := range points {
		responses[i] = toPointResponse(p)
	}
	ctx.JSON(http.StatusOK, dto.ListPointsResponse{Points: responses, Count: len(responses)})
}

func (h *AdminImagesHandler) Restore(ctx *gin.Context) {
	image, err := h.images.Restore(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, "Failed to restore image", err)
		return
	}
	ctx.JSON(http.StatusOK, toImageResponse(image))
}

func (h *AdminImagesHandler) DeletePoint(ctx *gin.Context) {
	if err := h.images.DeletePoint(ctx.Request.Context(), ctx.Param("id")); err != nil {
		respondError(ctx, "Failed to delete restoration point", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
