package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"futures-advisor/config"
	"futures-advisor/internal/advisor"
	"futures-advisor/internal/api"
	"futures-advisor/internal/audit"
	"futures-advisor/internal/auth"
	"futures-advisor/internal/binance"
	"futures-advisor/internal/circuit"
	"futures-advisor/internal/events"
	"futures-advisor/internal/fetcher"
	"futures-advisor/internal/history"
	"futures-advisor/internal/logging"
	"futures-advisor/internal/normalize"
	"futures-advisor/internal/notification"
	sig "futures-advisor/internal/signal"
	"futures-advisor/internal/state"
	"futures-advisor/internal/thresholds"
	"futures-advisor/internal/tickcache"
	"futures-advisor/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vault overlays service secrets onto the config before anything
	// consumes them.
	vaultClient, err := vault.NewClient(cfg.VaultConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create vault client: %v", err)
	}
	if vaultClient.Enabled() {
		if err := vaultClient.ApplySecrets(ctx, cfg); err != nil {
			log.Fatalf("Failed to read secrets from vault: %v", err)
		}
		logger.Info("Vault secrets applied")
	}

	limits, err := thresholds.NewStore(cfg.AdvisorConfig.ThresholdsPath)
	if err != nil {
		log.Fatalf("Failed to compile thresholds: %v", err)
	}

	states := buildStateStore(cfg, logger)

	cacheConfig := tickcache.DefaultConfig()
	cacheConfig.RetentionMargin = cfg.AdvisorConfig.Retention()

	engine := advisor.NewEngine(limits, states, advisor.EngineConfig{
		Cache:      cacheConfig,
		Policy:     metadataPolicy(cfg.AdvisorConfig.MetadataPolicy),
		TraceLimit: cfg.AdvisorConfig.TraceLimit,
	}, logger)
	logger.Info("Advisory engine initialized", "thresholds_version", limits.Current().Version())

	eventBus := events.NewEventBus()

	trail := buildAuditTrail(cfg, logger)

	notifyManager := notification.NewManager(cfg.NotificationConfig.Enabled)
	notifyManager.AddNotifier(notification.NewLogNotifier(logger))
	if cfg.NotificationConfig.WebhookURL != "" {
		notifyManager.AddNotifier(notification.NewWebhookNotifier(notification.WebhookConfig{
			WebhookURL: cfg.NotificationConfig.WebhookURL,
			Enabled:    true,
		}))
		logger.Info("Webhook notifications enabled")
	}

	breaker := circuit.NewBreaker(&circuit.BreakerConfig{
		Enabled:          cfg.CircuitConfig.Enabled,
		FailureThreshold: cfg.CircuitConfig.FailureThreshold,
		CooldownSeconds:  cfg.CircuitConfig.CooldownSeconds,
		ProbeCount:       cfg.CircuitConfig.ProbeCount,
	})
	breaker.OnTrip(func(reason string) {
		eventBus.PublishDataSource("binance", false, reason)
		notifyManager.SendDataSource("binance", false, reason)
	})
	breaker.OnRecover(func() {
		eventBus.PublishDataSource("binance", true, "")
		notifyManager.SendDataSource("binance", true, "")
	})

	var repo *history.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := history.NewDB(cfg.DatabaseConfig.DSN(), logger)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		repo = history.NewRepository(db)
	}

	var marketData binance.MarketDataClient
	if cfg.BinanceConfig.MockMode {
		marketData = binance.NewMockClient()
		logger.Warn("MOCK_MODE enabled, serving synthetic market data")
	} else {
		marketData = binance.NewClient(cfg.BinanceConfig.BaseURL, logger)
	}

	poller := fetcher.New(marketData, engine, breaker, eventBus, fetcher.Config{
		Symbols:      cfg.FetcherConfig.Symbols,
		PollInterval: cfg.FetcherConfig.Interval(),
		Concurrency:  cfg.FetcherConfig.Concurrency,
	}, logger)
	wireSinks(ctx, poller, repo, trail, notifyManager, cfg, logger)

	var authManager *auth.Manager
	if cfg.AuthConfig.Enabled {
		authManager = auth.NewManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.TokenDuration)
		logger.Info("API auth enabled")
	}

	server := api.NewServer(cfg.ServerConfig, engine, eventBus, breaker, repo, trail, authManager, logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start web server: %v", err)
		}
	}()

	if cfg.FetcherConfig.Enabled {
		go poller.Run(ctx)
	} else {
		logger.Warn("Fetcher disabled, engine only receives ticks via tests or replay")
	}

	eventBus.Publish(events.Event{
		Type: events.EventServiceStarted,
		Data: map[string]interface{}{
			"symbols":   cfg.FetcherConfig.Symbols,
			"mock_mode": cfg.BinanceConfig.MockMode,
		},
	})
	logger.Info("Futures advisor started",
		"addr", cfg.ServerConfig.Host, "port", cfg.ServerConfig.Port,
		"symbols", strings.Join(cfg.FetcherConfig.Symbols, ","))

	// SIGHUP reloads thresholds in place; SIGINT/SIGTERM shut down.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for s := range sigChan {
		if s == syscall.SIGHUP {
			version, err := engine.ReloadThresholds()
			trail.RecordReload(version, err)
			eventBus.PublishThresholdsReloaded(version, err)
			if err != nil {
				logger.Error("Threshold reload failed, previous set stays active", "error", err.Error())
			} else {
				logger.Info("Thresholds reloaded", "version", version)
			}
			continue
		}
		break
	}

	logger.Info("Shutting down")
	cancel()

	eventBus.Publish(events.Event{
		Type: events.EventServiceStopped,
		Data: map[string]interface{}{},
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownSeconds(cfg))*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down web server", "error", err.Error())
	}

	logger.Info("Shutdown complete")
}

// buildStateStore selects the memory store, optionally mirrored to Redis
func buildStateStore(cfg *config.Config, logger *logging.Logger) state.Store {
	if !cfg.RedisConfig.Enabled {
		return state.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisConfig.Address,
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.DB,
	})

	store := state.NewRedisStore(client)
	if !store.Available() {
		logger.Warn("Redis unreachable, decision state is memory-only", "addr", cfg.RedisConfig.Address)
	} else {
		logger.Info("Decision state mirrored to Redis", "addr", cfg.RedisConfig.Address)
	}
	return store
}

// buildAuditTrail opens the audit output, or returns the no-op trail
func buildAuditTrail(cfg *config.Config, logger *logging.Logger) *audit.Trail {
	if !cfg.AuditConfig.Enabled {
		return audit.NopTrail()
	}
	if cfg.AuditConfig.Output == "" || cfg.AuditConfig.Output == "stderr" {
		return audit.NewTrail(os.Stderr)
	}

	f, err := os.OpenFile(cfg.AuditConfig.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Error("Failed to open audit output, falling back to stderr",
			"path", cfg.AuditConfig.Output, "error", err.Error())
		return audit.NewTrail(os.Stderr)
	}
	return audit.NewTrail(f)
}

// wireSinks attaches audit, history and notification consumers to the
// fetcher so every evaluated result reaches them.
func wireSinks(
	ctx context.Context,
	poller *fetcher.Fetcher,
	repo *history.Repository,
	trail *audit.Trail,
	notifyManager *notification.Manager,
	cfg *config.Config,
	logger *logging.Logger,
) {
	poller.OnResult(trail.RecordDecision)

	if repo != nil {
		poller.OnResult(func(res *advisor.DualTimeframeResult) {
			go func() {
				insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				if err := repo.InsertResult(insertCtx, res); err != nil {
					logger.Error("Failed to persist advisory result",
						"symbol", res.Symbol, "error", err.Error())
				}
			}()
		})
	}

	minConfidence := sig.Confidence(strings.ToLower(cfg.NotificationConfig.MinConfidence))
	poller.OnResult(func(res *advisor.DualTimeframeResult) {
		if cfg.NotificationConfig.AlignedOnly && !res.Alignment.IsAligned {
			if res.Alignment.HasConflict {
				notifyManager.SendConflict(res.Symbol,
					string(res.Alignment.AlignmentType),
					string(res.Alignment.RecommendedAction))
			}
			return
		}
		if !res.ShortTerm.Decision.IsActionable() && !res.MediumTerm.Decision.IsActionable() {
			return
		}
		if minConfidence.IsValid() && res.Alignment.RecommendedConfidence.Rank() < minConfidence.Rank() {
			return
		}
		notifyManager.SendAdvice(res.Symbol,
			string(res.ShortTerm.Decision),
			string(res.MediumTerm.Decision),
			string(res.Alignment.AlignmentType),
			string(res.Alignment.RecommendedConfidence))
	})
}

// metadataPolicy maps the config's lowercase policy names onto the
// normalizer's constants.
func metadataPolicy(name string) normalize.Policy {
	switch strings.ToLower(name) {
	case "fail_fast":
		return normalize.PolicyFailFast
	case "assume_percent_point":
		return normalize.PolicyAssumePercentPoint
	default:
		return normalize.PolicyWarn
	}
}

func shutdownSeconds(cfg *config.Config) int {
	if cfg.ServerConfig.ShutdownTimeout > 0 {
		return cfg.ServerConfig.ShutdownTimeout
	}
	return 30
}
