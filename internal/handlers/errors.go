package handler

import (
	"errors"
	"net/http"

	"carbonwatch-backend/internal/logger"
	"carbonwatch-backend/internal/repository"
	"carbonwatch-backend/internal/services/ingestion"
	"carbonwatch-backend/internal/services/verification"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors to a status code and a JSON error body.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicateID):
		status = http.StatusConflict
	case errors.Is(err, ingestion.ErrParse),
		errors.Is(err, ingestion.ErrValidation),
		errors.Is(err, verification.ErrInvalidLabel):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		log := logger.FromContext(c.Request.Context())
		log.Error().Err(err).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
