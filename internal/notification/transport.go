package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/pkg/logger"
)

// Outbound routes accepted in configuration.
const (
	RouteInAppOnly  = "in_app_only"
	RouteEmail      = "email"
	RouteSMSGateway = "sms_gateway"
	RouteSMSAPI     = "sms_api"
)

// DeliveryTransport is the outbound route a Notifier uses for the non-in-app
// half of a delivery. It is one of InAppOnly, EmailTransport, SMSGateway or
// ThirdPartySMS.
type DeliveryTransport interface {
	Route() string
	sealed()
}

// InAppOnly disables outbound delivery.
type InAppOnly struct{}

// EmailTransport sends rendered templates over SMTP.
type EmailTransport struct {
	Config EmailConfig
}

// SMSGateway sends texts through carrier email-to-SMS gateways over SMTP.
type SMSGateway struct {
	Config EmailConfig
}

// ThirdPartySMS sends texts through an SMS provider API.
type ThirdPartySMS struct {
	Config SMSProviderConfig
}

func (InAppOnly) Route() string { return RouteInAppOnly }
func (EmailTransport) Route() string { return RouteEmail }
func (SMSGateway) Route() string { return RouteSMSGateway }
func (ThirdPartySMS) Route() string { return RouteSMSAPI }

func (InAppOnly) sealed() {}
func (EmailTransport) sealed() {}
func (SMSGateway) sealed() {}
func (ThirdPartySMS) sealed() {}

// ResolveTransport picks the transport for route from the active settings rows.
// A route whose settings row is missing degrades to InAppOnly.
func ResolveTransport(ctx context.Context, route string, settings SettingsStore) (DeliveryTransport, error) {
	switch route {
	case RouteInAppOnly:
		return InAppOnly{}, nil

	case RouteEmail, RouteSMSGateway:
		cfg, found, err := settings.ActiveEmailConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load email settings: %w", err)
		}
		if !found {
			logger.Info("no active email settings, outbound delivery disabled", zap.String("route", route))
			return InAppOnly{}, nil
		}
		if route == RouteSMSGateway {
			return SMSGateway{Config: cfg}, nil
		}
		return EmailTransport{Config: cfg}, nil

	case RouteSMSAPI:
		cfg, found, err := settings.ActiveSMSProviderConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load sms settings: %w", err)
		}
		if !found {
			logger.Info("no active sms settings, outbound delivery disabled", zap.String("route", route))
			return InAppOnly{}, nil
		}
		return ThirdPartySMS{Config: cfg}, nil

	default:
		return nil, fmt.Errorf("unknown outbound route %q", route)
	}
}
