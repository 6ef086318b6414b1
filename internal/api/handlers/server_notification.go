package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/api/middleware"
	"fieldops.io/fieldops/internal/notification"
	apperrors "fieldops.io/fieldops/internal/pkg/errors"
	"fieldops.io/fieldops/internal/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// GenerateManager handles POST /notifications/generate-manager.
func (s *Server) GenerateManager(c *gin.Context) {
	s.generate(c, "manager", s.generator.GenerateManager)
}

// GenerateTechnician handles POST /notifications/generate-technician.
func (s *Server) GenerateTechnician(c *gin.Context) {
	s.generate(c, "technician", s.generator.GenerateTechnician)
}

func (s *Server) generate(c *gin.Context, scope string, run func(ctx context.Context) (*notification.Summary, error)) {
	ctx := c.Request.Context()
	summary, err := run(ctx)
	if err != nil {
		logger.With(middleware.LogFields(ctx)...).Error("notification generation failed",
			zap.String("scope", scope),
			zap.Error(err),
		)
		_ = c.Error(apperrors.ErrGenerationFailed(err))
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GenerateAll handles POST /notifications/generate-all. It always answers
// 200; failed sub-generations are listed in the summary's errors.
func (s *Server) GenerateAll(c *gin.Context) {
	c.JSON(http.StatusOK, s.generator.GenerateAll(c.Request.Context()))
}

type notificationList struct {
	Items []notification.Notification `json:"items"`
}

// ListNotifications handles GET /notifications: the caller's live notifications.
func (s *Server) ListNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	username := middleware.GetUsername(ctx)
	if username == "" {
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required"))
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequestField, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}

	items, err := s.inbox.ListLiveNotifications(ctx, username, s.now(), limit)
	if err != nil {
		_ = c.Error(apperrors.Internal(err, "failed to list notifications"))
		return
	}
	if items == nil {
		items = []notification.Notification{}
	}
	c.JSON(http.StatusOK, notificationList{Items: items})
}

// DismissNotification handles POST /notifications/:id/dismiss.
func (s *Server) DismissNotification(c *gin.Context) {
	ctx := c.Request.Context()
	username := middleware.GetUsername(ctx)
	if username == "" {
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required"))
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequestField, "invalid notification id"))
		return
	}

	n, err := s.inbox.DismissNotification(ctx, id, username)
	if err != nil {
		_ = c.Error(apperrors.Internal(err, "failed to dismiss notification"))
		return
	}
	// Unknown, foreign and already-dismissed rows look the same to the caller.
	if n == 0 {
		_ = c.Error(apperrors.NotFound(apperrors.CodeNotificationNotFound, "notification not found"))
		return
	}
	c.Status(http.StatusNoContent)
}
