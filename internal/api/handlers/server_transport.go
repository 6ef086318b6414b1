package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/api/middleware"
	"fieldops.io/fieldops/internal/notification"
	apperrors "fieldops.io/fieldops/internal/pkg/errors"
	"fieldops.io/fieldops/internal/pkg/logger"
	"fieldops.io/fieldops/internal/pkg/secret"
)

type emailSettingsRequest struct {
	Host      string `json:"host" binding:"required"`
	Port      int    `json:"port" binding:"required,min=1,max=65535"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FromEmail string `json:"from_email" binding:"required,email"`
	FromName  string `json:"from_name"`
	UseTLS    bool   `json:"use_tls"`
}

type emailSettingsResponse struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name,omitempty"`
	UseTLS    bool   `json:"use_tls"`
}

// PutEmailSettings handles PUT /admin/transport/email. The saved row becomes
// the active SMTP configuration; the password is sealed at rest and only
// echoed back masked.
func (s *Server) PutEmailSettings(c *gin.Context) {
	var req emailSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInvalidRequestField,
			"host, port (1-65535) and a valid from_email are required", http.StatusBadRequest))
		return
	}

	ctx := c.Request.Context()
	cfg := notification.EmailConfig{
		Host:      req.Host,
		Port:      req.Port,
		Username:  req.Username,
		Password:  req.Password,
		FromEmail: req.FromEmail,
		FromName:  req.FromName,
		UseTLS:    req.UseTLS,
	}
	if err := s.settings.SaveEmailConfig(ctx, cfg); err != nil {
		_ = c.Error(apperrors.Internal(err, "failed to save email settings"))
		return
	}
	logger.With(middleware.LogFields(ctx)...).Info("email transport settings updated",
		zap.String("by", middleware.GetUsername(ctx)),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
	)

	c.JSON(http.StatusOK, emailSettingsResponse{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Username:  cfg.Username,
		Password:  secret.Mask(cfg.Password),
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
		UseTLS:    cfg.UseTLS,
	})
}

type smsSettingsRequest struct {
	Provider   string `json:"provider" binding:"required"`
	AccountSID string `json:"account_sid" binding:"required"`
	AuthToken  string `json:"auth_token" binding:"required"`
	FromNumber string `json:"from_number" binding:"required"`
	BaseURL    string `json:"base_url" binding:"omitempty,url"`
}

type smsSettingsResponse struct {
	Provider   string `json:"provider"`
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	FromNumber string `json:"from_number"`
	BaseURL    string `json:"base_url,omitempty"`
}

// PutSMSSettings handles PUT /admin/transport/sms.
func (s *Server) PutSMSSettings(c *gin.Context) {
	var req smsSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInvalidRequestField,
			"provider, account_sid, auth_token and from_number are required", http.StatusBadRequest))
		return
	}
	if _, ok := notification.NormalizePhone(req.FromNumber); !ok {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequestField, "from_number is not a valid phone number"))
		return
	}

	ctx := c.Request.Context()
	cfg := notification.SMSProviderConfig{
		Provider:   req.Provider,
		AccountSID: req.AccountSID,
		AuthToken:  req.AuthToken,
		FromNumber: req.FromNumber,
		BaseURL:    req.BaseURL,
	}
	if err := s.settings.SaveSMSProviderConfig(ctx, cfg); err != nil {
		_ = c.Error(apperrors.Internal(err, "failed to save sms settings"))
		return
	}
	logger.With(middleware.LogFields(ctx)...).Info("sms transport settings updated",
		zap.String("by", middleware.GetUsername(ctx)),
		zap.String("provider", cfg.Provider),
	)

	c.JSON(http.StatusOK, smsSettingsResponse{
		Provider:   cfg.Provider,
		AccountSID: cfg.AccountSID,
		AuthToken:  secret.Mask(cfg.AuthToken),
		FromNumber: cfg.FromNumber,
		BaseURL:    cfg.BaseURL,
	})
}
