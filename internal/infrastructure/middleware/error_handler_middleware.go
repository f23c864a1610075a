package middleware

import (
	"errors"
	"net/http"

	"rillnet/internal/core/domain"
	apperrors "rillnet/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// mapDomainError translates the forward package's sentinel errors
// into an AppError carrying the matching HTTP status. Returns nil for
// errors it doesn't recognize, leaving those to the generic 500
// fallback below.
func mapDomainError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, domain.ErrStreamAlreadyExists):
		return apperrors.NewConflictError(err.Error())
	case errors.Is(err, domain.ErrNoPublisher), errors.Is(err, domain.ErrSessionNotFound):
		return apperrors.NewNotFoundError(err.Error())
	case errors.Is(err, domain.ErrNotOwner):
		return apperrors.NewForbiddenError(err.Error())
	case errors.Is(err, domain.ErrInvalidMedia):
		return apperrors.NewInvalidInputError(err.Error())
	default:
		return nil
	}
}

// ErrorHandlerMiddleware handles application errors and returns appropriate HTTP responses
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Check if there are any errors
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err

			// Try to extract AppError, falling back to the domain
			// sentinel-error mapping before giving up to a 500.
			appErr := apperrors.GetAppError(err)
			if appErr == nil {
				appErr = mapDomainError(err)
			}
			if appErr != nil {
				// Log error with context
				logger.Errorw("application error",
					"code", appErr.Code,
					"message", appErr.Message,
					"status", appErr.HTTPStatus,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"context", appErr.Context,
					"request_id", c.GetString("request_id"),
				)

				// Return structured error response
				c.JSON(appErr.HTTPStatus, gin.H{
					"error":   string(appErr.Code),
					"message": appErr.Message,
					"details": appErr.Context,
				})
				return
			}

			// Handle non-AppError errors
			logger.Errorw("unhandled error",
				"error", err.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   string(apperrors.ErrCodeInternal),
				"message": "Internal server error",
			})
		}
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   string(apperrors.ErrCodeInternal),
					"message": "Internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}

