package modules

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/api/handlers"
	"fieldops.io/fieldops/internal/config"
	"fieldops.io/fieldops/internal/jobs"
	"fieldops.io/fieldops/internal/notification"
	"fieldops.io/fieldops/internal/notification/rules"
	"fieldops.io/fieldops/internal/pkg/logger"
	"fieldops.io/fieldops/internal/pkg/worker"
	"fieldops.io/fieldops/internal/provider/events"
	"fieldops.io/fieldops/internal/provider/mail"
	"fieldops.io/fieldops/internal/provider/sms"
	"fieldops.io/fieldops/internal/repository/pg"
)

// NotificationModule owns the generation pipeline, the inbox API and the
// retention cleanup job.
type NotificationModule struct {
	generator *notification.Generator
	queries   *pg.Queries
	settings  *pg.Store
	publisher *events.Publisher
	pool      *worker.Pool
	retention time.Duration
}

// NewNotificationModule wires the generator against the shared pool.
func NewNotificationModule(infra *Infrastructure) (*NotificationModule, error) {
	if infra == nil || infra.Config == nil || infra.Pool == nil || infra.Box == nil {
		return nil, fmt.Errorf("notification module requires pool, config and secret box")
	}
	cfg := infra.Config.Notification

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("notification timezone: %w", err)
	}

	queries := pg.New(infra.Pool)
	m := &NotificationModule{
		queries:   queries,
		settings:  pg.NewStore(queries, infra.Box),
		retention: cfg.Retention,
	}

	var publisher notification.EventPublisher = events.Noop{}
	if kc := infra.Config.Kafka; len(kc.Brokers) > 0 {
		pool, err := worker.NewPool(context.Background(), "events", kc.PublishWorkers)
		if err != nil {
			return nil, fmt.Errorf("init event worker pool: %w", err)
		}
		m.pool = pool
		m.publisher = events.NewPublisher(kc.Brokers, kc.Topic)
		publisher = events.NewAsync(m.publisher, pool, kc.PublishTimeout)
	}

	m.generator = notification.NewGenerator(pg.NewTxRunner(infra.Pool, infra.Box), generatorConfig(cfg, loc, publisher))

	logger.Info("notification pipeline configured",
		zap.String("outbound", cfg.Outbound),
		zap.String("timezone", loc.String()),
		zap.Bool("events", m.publisher != nil),
	)
	return m, nil
}

func generatorConfig(cfg config.NotificationConfig, loc *time.Location, publisher notification.EventPublisher) notification.GeneratorConfig {
	return notification.GeneratorConfig{
		Route:      cfg.Outbound,
		SentBy:     cfg.SenderIdentity,
		Location:   loc,
		Mailer:     mail.NewSender(),
		SMS:        sms.NewClient(nil),
		Events:     publisher,
		Manager:    rules.Manager(),
		Technician: rules.Technician(),
	}
}

func (m *NotificationModule) Name() string { return "notification" }

func (m *NotificationModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Generator = m.generator
	deps.Inbox = m.queries
	deps.Settings = m.settings
}

func (m *NotificationModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewNotificationCleanupWorker(m.queries, m.retention))
}

// PeriodicJobs runs retention cleanup daily and once on startup.
func (m *NotificationModule) PeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.NotificationCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// Shutdown drains queued event publishes before closing the Kafka writer.
func (m *NotificationModule) Shutdown(context.Context) error {
	if m.pool != nil {
		stats := m.pool.Metrics()
		logger.Info("draining event publishes",
			zap.Int("running", stats["running"]),
			zap.Int("cap", stats["cap"]),
		)
		m.pool.Shutdown()
	}
	if m.publisher == nil {
		return nil
	}
	return m.publisher.Close()
}
