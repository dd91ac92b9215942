package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/middleware"
)

// respondError maps a service error onto an HTTP status and APIError body.
func (s *Server) respondError(c *gin.Context, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		middleware.AbortWithError(c, http.StatusBadRequest, domain.ErrCodeValidation, validation.Message, validation.Field)
	case errors.Is(err, domain.ErrInvalidInput):
		middleware.AbortWithError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid input", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		middleware.AbortWithError(c, http.StatusNotFound, domain.ErrCodeNotFound, "Resource not found", "")
	case errors.Is(err, domain.ErrDuplicate):
		middleware.AbortWithError(c, http.StatusConflict, domain.ErrCodeConflict, "Record already exists", err.Error())
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		s.logger.WithError(err).WithField("correlation_id", c.GetString(middleware.CorrelationIDKey)).Warn("Dependency unavailable")
		middleware.AbortWithError(c, http.StatusServiceUnavailable, domain.ErrCodeUnavailable, "Service temporarily unavailable", "")
	default:
		s.logger.WithError(err).WithFields(logrus.Fields{
			"correlation_id": c.GetString(middleware.CorrelationIDKey),
			"path":           c.FullPath(),
		}).Error("Request failed")
		middleware.AbortWithError(c, http.StatusInternalServerError, domain.ErrCodeInternalServer, "Internal server error", "")
	}
}

func (s *Server) badRequest(c *gin.Context, details string) {
	middleware.AbortWithError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid request", details)
}
