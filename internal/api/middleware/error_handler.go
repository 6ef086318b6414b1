// Package middleware provides HTTP middleware for the notification API.
package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "fieldops.io/fieldops/internal/pkg/errors"
	"fieldops.io/fieldops/internal/pkg/logger"
)

// ErrorHandler renders the last error added via c.Error() as
// {code, message, reference}. The underlying error is logged, never returned.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		ctx := c.Request.Context()
		appErr, ok := apperrors.IsAppError(c.Errors.Last().Err)
		if !ok {
			appErr = apperrors.Internal(c.Errors.Last().Err, "An internal error occurred")
		}

		fields := append(LogFields(ctx),
			zap.String("code", appErr.Code),
			zap.Int("status", appErr.HTTPStatus),
			zap.String("path", c.FullPath()),
			zap.Error(appErr.Err),
		)
		if appErr.HTTPStatus >= 500 {
			logger.Error("request failed", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}

		c.JSON(appErr.HTTPStatus, appErr.Response(GetRequestID(ctx)))
	}
}

// abortWith stops the chain with e rendered the same way ErrorHandler would.
func abortWith(c *gin.Context, e *apperrors.AppError) {
	c.AbortWithStatusJSON(e.HTTPStatus, e.Response(GetRequestID(c.Request.Context())))
}
