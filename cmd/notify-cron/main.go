// Command notify-cron triggers notification generation on a schedule by
// calling the server's generate-all endpoint.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/app/modules"
	"fieldops.io/fieldops/internal/config"
	"fieldops.io/fieldops/internal/pkg/logger"
	"fieldops.io/fieldops/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	once := flag.Bool("once", false, "trigger one generation and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	loc, err := cfg.Notification.Location()
	if err != nil {
		return fmt.Errorf("notification timezone: %w", err)
	}

	trigger := scheduler.NewTrigger(nil, cfg.Cron.TargetURL, cfg.Cron.ServiceUser, modules.JWTConfig(cfg.Security), cfg.Cron.Timeout)
	s := scheduler.New(trigger, cfg.Cron.Timeout, loc)

	if *once {
		s.RunOnce()
		return nil
	}

	if err := s.Start(cfg.Cron.Schedule); err != nil {
		return err
	}
	logger.Info("notify-cron running",
		zap.String("target", cfg.Cron.TargetURL),
		zap.String("timezone", loc.String()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.Stop()
	return nil
}
