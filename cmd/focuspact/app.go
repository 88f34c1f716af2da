package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/focuspact/focuspact/internal/config"
	"github.com/focuspact/focuspact/internal/events"
	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/policy"
	"github.com/focuspact/focuspact/internal/storage"
	"github.com/focuspact/focuspact/internal/storage/redis"
	"github.com/focuspact/focuspact/internal/storage/remote"
	"github.com/focuspact/focuspact/internal/storage/sqlite"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// app is the set of components shared by every command.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   storage.Store
	clock   usage.Clock
	journal *events.JournalSource
	usage   *usage.Service
	limits  *limits.Store
	policy  *policy.Evaluator
	backend *remote.Client
}

// loadConfig loads the configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if ownerFlag != "" {
		cfg.Session.Owner = ownerFlag
	}
	return cfg, nil
}

// newApp opens storage and builds the usage and limit components for the
// configured session owner.
func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Session.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid session timezone: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	limitBackend, backend, err := openLimitBackend(cfg.Backend, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	limitStore, err := limits.NewStore(limitBackend, cfg.Session.Owner, limits.Options{
		CacheSize: cfg.Limits.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize limit store: %w", err)
	}

	evaluator, err := policy.NewEvaluator(logger)
	if err != nil {
		_ = limitStore.Close()
		_ = store.Close()
		return nil, err
	}

	clock := usage.RealClock{Location: loc}
	journal := events.NewJournalSource(store.Events(), cfg.Session.Owner, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		clock:   clock,
		journal: journal,
		usage:   usage.NewService(journal, clock, logger),
		limits:  limitStore,
		policy:  evaluator,
		backend: backend,
	}, nil
}

// Close ends the limit session and closes storage.
func (a *app) Close() error {
	_ = a.limits.Close()
	return a.store.Close()
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "redis":
		return redis.Open(cfg.Redis)
	case "sqlite", "":
		return sqlite.Open(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be redis or sqlite)", cfg.Type)
	}
}

// openLimitBackend returns the hosted limit service when one is configured,
// otherwise the local store's limits. The client is nil for local limits.
func openLimitBackend(cfg config.BackendConfig, store storage.Store, logger zerolog.Logger) (storage.LimitStore, *remote.Client, error) {
	if cfg.URL == "" {
		return store.Limits(), nil, nil
	}
	client, err := remote.NewClient(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize backend client: %w", err)
	}
	return remote.NewLimitStore(client), client, nil
}

// refreshBackendSession re-reads the configuration and hands a changed
// backend access token to the running client. It reports whether the
// token was replaced.
func (a *app) refreshBackendSession(load func() (*config.Config, error)) (bool, error) {
	if a.backend == nil {
		return false, nil
	}
	cfg, err := load()
	if err != nil {
		return false, err
	}
	if cfg.Backend.AccessToken == a.cfg.Backend.AccessToken {
		return false, nil
	}
	a.backend.SetAccessToken(cfg.Backend.AccessToken)
	a.cfg.Backend.AccessToken = cfg.Backend.AccessToken
	return true, nil
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig, out *os.File) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = out
	switch cfg.Format {
	case "text":
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "auto":
		if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
			w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		}
	}

	return zerolog.New(w).With().Timestamp().Logger()
}

// quietLogger is used by one-shot commands: errors only, on stderr.
func quietLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.ErrorLevel).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// openCommandApp loads configuration and builds an app with a quiet logger.
func openCommandApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, quietLogger())
}
