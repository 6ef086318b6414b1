// Package scheduler fires the generate-all endpoint on a cron schedule. It is
// the external trigger; the API process never schedules generation itself.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/api/middleware"
	"fieldops.io/fieldops/internal/notification"
	"fieldops.io/fieldops/internal/pkg/logger"
)

// serviceRoles are carried by the minted token; any manager role passes the gate.
var serviceRoles = []string{"admin"}

// Trigger calls the generation endpoint with a freshly minted service token.
type Trigger struct {
	client      *http.Client
	targetURL   string
	serviceUser string
	jwt         middleware.JWTConfig
}

// NewTrigger creates a trigger. A nil client gets timeout as its deadline.
func NewTrigger(client *http.Client, targetURL, serviceUser string, jwtCfg middleware.JWTConfig, timeout time.Duration) *Trigger {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Trigger{client: client, targetURL: targetURL, serviceUser: serviceUser, jwt: jwtCfg}
}

// Fire posts once and decodes the summary.
func (t *Trigger) Fire(ctx context.Context) (*notification.Summary, error) {
	token, _, err := middleware.GenerateToken(t.jwt, t.serviceUser, serviceRoles)
	if err != nil {
		return nil, fmt.Errorf("mint service token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", t.targetURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation endpoint returned %d: %s", resp.StatusCode, body)
	}

	var summary notification.Summary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &summary, nil
}

// Scheduler runs a Trigger on a cron expression.
type Scheduler struct {
	cron    *cron.Cron
	trigger *Trigger
	timeout time.Duration
}

// New creates a scheduler that evaluates its schedule in loc.
func New(trigger *Trigger, timeout time.Duration, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		trigger: trigger,
		timeout: timeout,
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return fmt.Errorf("add cron job %q: %w", schedule, err)
	}
	s.cron.Start()
	logger.Info("notification scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running trigger to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("notification scheduler stopped")
}

// RunOnce fires immediately, outside the schedule.
func (s *Scheduler) RunOnce() { s.run() }

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	summary, err := s.trigger.Fire(ctx)
	if err != nil {
		logger.Error("scheduled generation failed", zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.String("message", summary.Message),
		zap.Int("created", summary.NotificationsCreated),
		zap.Int("recipients", summary.RecipientsNotified),
		zap.Duration("took", time.Since(start)),
	}
	for _, e := range summary.Errors {
		logger.Warn("sub-generation failed",
			zap.String("scope", e.Scope),
			zap.String("rule", e.Rule),
			zap.String("reference", e.Reference),
		)
	}
	logger.Info("scheduled generation completed", fields...)
}
