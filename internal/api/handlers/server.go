// Package handlers implements the notification HTTP API: the generation
// trigger endpoints and the recipient's inbox.
package handlers

import (
	"context"
	"time"

	"fieldops.io/fieldops/internal/notification"
)

// Generator runs rule sets. Implemented by *notification.Generator.
type Generator interface {
	GenerateManager(ctx context.Context) (*notification.Summary, error)
	GenerateTechnician(ctx context.Context) (*notification.Summary, error)
	GenerateAll(ctx context.Context) *notification.Summary
}

// Inbox reads and dismisses a recipient's notifications.
type Inbox interface {
	ListLiveNotifications(ctx context.Context, username string, now time.Time, limit int) ([]notification.Notification, error)
	DismissNotification(ctx context.Context, id int64, username string) (int64, error)
}

// TransportSettings stores the active outbound configuration, sealing its
// secret. Implemented by *pg.Store.
type TransportSettings interface {
	SaveEmailConfig(ctx context.Context, cfg notification.EmailConfig) error
	SaveSMSProviderConfig(ctx context.Context, cfg notification.SMSProviderConfig) error
}

// Server holds handler dependencies.
type Server struct {
	generator Generator
	inbox     Inbox
	settings  TransportSettings
	now       func() time.Time
}

// ServerDeps holds all dependencies for creating a Server. Manual DI.
type ServerDeps struct {
	Generator Generator
	Inbox     Inbox
	Settings  TransportSettings
	Now       func() time.Time
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		generator: deps.Generator,
		inbox:     deps.Inbox,
		settings:  deps.Settings,
		now:       now,
	}
}
