package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/chaterr"
)

// respondError maps the domain taxonomy onto HTTP statuses: validation to
// 400, not-found to 404, everything else (persistence included) to 500.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chaterr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, chaterr.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		logger.Error(op, zap.Error(err))
		c.JSON(status, gin.H{"error": op})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
