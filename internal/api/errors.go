package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/service"
)

// respondError maps service errors to HTTP statuses. Anything unrecognised
// is logged and reported as a 500 without details.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrPayloadTooLarge):
		abortWithError(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrUnsupportedMediaType):
		abortWithError(c, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		abortWithError(c, http.StatusServiceUnavailable, "Attachment storage is temporarily unavailable, retry later")
	case errors.Is(err, service.ErrURLResolution):
		abortWithError(c, http.StatusBadGateway, "Download link could not be generated, retry later")
	case errors.Is(err, service.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "Resource not found")
	case errors.Is(err, service.ErrUserAlreadyExists), errors.Is(err, service.ErrDuplicateEntry):
		abortWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAuthenticationFailed), errors.Is(err, service.ErrInvalidToken):
		abortWithError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		abortWithError(c, http.StatusBadRequest, err.Error())
	default:
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

// bindJSON decodes the body into dst and answers 400 when it fails validation.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return false
	}
	return true
}
