package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toboto/moltbot-wecom-channel/internal/config"
	"github.com/toboto/moltbot-wecom-channel/internal/constants"
	"github.com/toboto/moltbot-wecom-channel/internal/database"
	"github.com/toboto/moltbot-wecom-channel/internal/media"
	"github.com/toboto/moltbot-wecom-channel/internal/models"
	"github.com/toboto/moltbot-wecom-channel/internal/retry"
	"github.com/toboto/moltbot-wecom-channel/internal/service"
	"github.com/toboto/moltbot-wecom-channel/internal/tracing"
	"github.com/toboto/moltbot-wecom-channel/pkg/wecom"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wecombridge %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	// Local .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting wecombridge")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevel(logger, cfg)

	tracingManager := tracing.NewManager(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openMessageLog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	go runRetentionLoop(ctx, db, logger)

	msgService, dispatcher := buildPipeline(cfg, db, logger)
	logger.WithField("accounts", len(cfg.Accounts)).Info("Bridge initialized")

	server := NewServer(cfg, msgService, dispatcher, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// applyLogLevel picks the effective level: the verbose flag overrides
// the config, and config.LoadConfig has already rejected debug levels
// in production.
func applyLogLevel(logger *logrus.Logger, cfg *models.Config) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}

	if cfg.LogLevel == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// openMessageLog opens the dedup log with exponential backoff: first
// boot can race the mount that holds the database file.
func openMessageLog(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoff := retry.New(retry.Config{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  cfg.Retry.MaxAttempts,
		Jitter:       true,
	})

	var db *database.Database
	err := backoff.Retry(ctx, func() error {
		var openErr error
		db, openErr = database.New(cfg.Database.Path)
		if openErr != nil {
			logger.Warnf("Failed to initialize database: %v", openErr)
		}
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

// buildPipeline wires the outbound tier chain and the inbound message
// service around the shared HTTP client and token cache.
func buildPipeline(cfg *models.Config, db *database.Database, logger *logrus.Logger) (*service.MessageService, *service.Dispatcher) {
	httpClient := &http.Client{Timeout: constants.DefaultHTTPTimeoutSec * time.Second}

	tokens := wecom.NewTokenCache(os.Getenv("WECOM_BRIDGE_API_BASE_URL"), httpClient)
	apiClient := wecom.NewClient(os.Getenv("WECOM_BRIDGE_API_BASE_URL"), httpClient, tokens)

	pending := service.NewPendingSyncStore(constants.DefaultSyncTimeoutMs * time.Millisecond)
	dispatcher := service.NewDispatcher(
		[]service.DeliveryTier{
			service.NewSyncTier(pending),
			service.NewFirstPartyTier(apiClient, media.NewFetcher(httpClient), media.NewRouter(cfg.Media)),
			service.NewLegacyTier(httpClient),
			service.NewWebhookTier(httpClient),
		},
		service.NewOutboundQueue(), pending, service.NewRecipientTracker(), logger)

	// No speech engine ships with the bridge; voice messages are
	// forwarded as placeholders until a Transcriber is plugged in here.
	var transcriber service.Transcriber

	msgService := service.NewMessageService(
		service.NewHTTPBackend(cfg.Backend), dispatcher, db, apiClient, transcriber, logger)

	return msgService, dispatcher
}

// runRetentionLoop prunes old dedup records once a day
func runRetentionLoop(ctx context.Context, db *database.Database, logger *logrus.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := db.CleanupOlderThan(ctx, constants.DefaultRetentionDays)
			if err != nil {
				logger.WithError(err).Warn("Message log cleanup failed")
				continue
			}
			logger.WithField("count", removed).Debug("Message log cleanup completed")
		}
	}
}
