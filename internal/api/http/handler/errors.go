package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/EternisAI/netboot/internal/auth"
	"github.com/EternisAI/netboot/internal/boot"
	"github.com/EternisAI/netboot/internal/clients"
	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/images"
	"github.com/EternisAI/netboot/internal/stats"
	"github.com/gin-gonic/gin"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{common.ErrNotProvisioned, http.StatusForbidden},
	{common.ErrInvalidToken, http.StatusUnauthorized},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{common.ErrIdentityMismatch, http.StatusForbidden},
	{common.ErrUnknownClient, http.StatusNotFound},
	{common.ErrNoImageAssigned, http.StatusNotFound},
	{common.ErrAlreadyActive, http.StatusConflict},
	{common.ErrNotActive, http.StatusConflict},
	{common.ErrInUse, http.StatusConflict},
	{common.ErrAlreadyExists, http.StatusConflict},
	{common.ErrLocked, http.StatusLocked},
	{common.ErrOutOfRange, http.StatusRequestedRangeNotSatisfiable},
	{common.ErrInvalidCommand, http.StatusBadRequest},
	{clients.ErrInvalidHardwareAddress, http.StatusBadRequest},
	{clients.ErrInvalidBootMode, http.StatusBadRequest},
	{images.ErrInvalidImage, http.StatusBadRequest},
	{boot.ErrInvalidEvent, http.StatusBadRequest},
	{stats.ErrInvalidSample, http.StatusBadRequest},
	{common.ErrStorageFailure, http.StatusInternalServerError},
	{common.ErrNotFound, http.StatusNotFound},
}

// statusFor maps a service error to its HTTP status. Storage failures are
// checked before not-found because they may wrap a repository error.
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes err as JSON. Internal errors are logged and their
// detail withheld from the response.
func respondError(ctx *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(msg, "error", err, "path", ctx.FullPath())
		ctx.JSON(status, gin.H{"error": "internal error"})
		return
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}
