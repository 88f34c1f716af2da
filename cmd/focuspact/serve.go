package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/focuspact/focuspact/internal/api"
	"github.com/focuspact/focuspact/internal/bridge"
	"github.com/focuspact/focuspact/internal/metrics"
	"github.com/focuspact/focuspact/internal/monitor"
	"github.com/focuspact/focuspact/internal/systemd"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FocusPact service",
	Long: `Start the FocusPact service: the JSON API, the metrics endpoint, the
usage/limit monitor, journal retention and (when configured) the event inbox.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("owner", cfg.Session.Owner).
		Msg("Starting FocusPact")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Bool("remote_limits", cfg.Backend.URL != "").
		Msg("Storage initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Monitor
	mon := monitor.New(a.usage, a.limits, a.policy, cfg.Usage.WindowDays, logger)
	pollInterval := parseDuration(cfg.Usage.PollInterval, time.Minute)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		mon.Run(ctx, pollInterval)
	}()

	// Journal retention
	retention, err := usage.NewRetentionScheduler(
		a.store.Events(),
		cfg.Session.Owner,
		cfg.Usage.RetentionDays,
		cfg.Usage.PruneTime,
		a.clock,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize retention scheduler: %w", err)
	}
	retention.Start()

	// Event inbox
	var inbox *bridge.Inbox
	if cfg.Usage.InboxDir != "" {
		inbox, err = bridge.NewInbox(cfg.Usage.InboxDir, a.journal, mon.Trigger, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize event inbox: %w", err)
		}
		if err := inbox.Start(ctx); err != nil {
			return fmt.Errorf("failed to start event inbox: %w", err)
		}
	}

	// API server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(apiAddr, api.Deps{
		Usage:    a.usage,
		Limits:   a.limits,
		Monitor:  mon,
		Source:   a.journal,
		Recorder: a.journal,
	}, logger)
	if sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Metrics server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 || sdListeners.Metrics != nil {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	go systemd.RunWatchdog(ctx, logger)

	logger.Info().
		Str("api", apiAddr).
		Dur("poll_interval", pollInterval).
		Str("inbox", cfg.Usage.InboxDir).
		Msg("FocusPact startup complete")

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			// Treated as a resume: pick up a renewed backend session, then
			// re-read permission and limits on the next poll
			logger.Info().Msg("SIGHUP received, triggering poll")
			if _, err := a.refreshBackendSession(loadConfig); err != nil {
				logger.Warn().Err(err).Msg("Failed to reload backend session")
			}
			mon.Trigger()
			continue
		}
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}
	if inbox != nil {
		if err := inbox.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping event inbox")
		}
	}
	retention.Stop()
	cancel()
	<-monitorDone

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("FocusPact stopped")
	return nil
}
