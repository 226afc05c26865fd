package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-orchestrator/config"
	"trading-orchestrator/internal/ai"
	"trading-orchestrator/internal/api"
	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/engine"
	"trading-orchestrator/internal/events"
	"trading-orchestrator/internal/exchange"
	"trading-orchestrator/internal/logging"
	"trading-orchestrator/internal/market"
	"trading-orchestrator/internal/notification"
	"trading-orchestrator/internal/pending"
	"trading-orchestrator/internal/profile"
	"trading-orchestrator/internal/risk"
	"trading-orchestrator/internal/scheduler"
	"trading-orchestrator/internal/secrets"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	command := "start"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "start":
		if err := runStart(); err != nil {
			fmt.Fprintf(os.Stderr, "start failed: %v\n", err)
			os.Exit(1)
		}
	case "emergency-stop-all":
		if err := runEmergencyStopAll(); err != nil {
			fmt.Fprintf(os.Stderr, "emergency stop all failed: %v\n", err)
			os.Exit(1)
		}
	case "gen-config":
		if err := runGenConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "gen-config failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected start, emergency-stop-all, gen-config)\n", command)
		os.Exit(2)
	}
}

func runStart() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.LoggingConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.DatabaseConfig, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	repo := database.NewRepository(db)

	marketCache := market.NewCache(cfg.RedisConfig, logger)
	defer marketCache.Close()
	marketSvc := market.NewService(cfg.MarketConfig, marketCache, logger)

	secretStore, err := secrets.NewStore(cfg.VaultConfig, repo, logger)
	if err != nil {
		return fmt.Errorf("init secret store: %w", err)
	}
	clientFactory := exchange.NewFactory(secretStore, cfg.ExchangeConfig, marketSvc, logger)

	bus := events.NewBus()
	riskMgr := risk.NewManager(logger)
	profiles := profile.NewEngine(repo, logger)
	if err := profiles.SeedPresets(ctx); err != nil {
		return fmt.Errorf("seed profiles: %w", err)
	}

	decider := ai.NewLLMDecider(cfg.AIConfig, logger)
	simExec := engine.NewSimulationExecutor(repo, logger)
	liveExec := engine.NewLiveExecutor(repo, clientFactory, logger)
	eng := engine.New(repo, marketSvc, decider, riskMgr, profiles, simExec, liveExec, bus, logger)

	queue := pending.NewQueue(repo, eng, bus, logger)
	sched := scheduler.New(repo, eng, queue, bus, logger)

	notifier := notification.NewManager(cfg.NotificationConfig, database.SeverityLow, logger)
	notifier.Attach(bus)

	server := api.NewServer(
		cfg.ServerConfig, repo, eng, queue, profiles, sched,
		secretStore, clientFactory, bus, logger,
	)

	if err := repo.CreateIncident(ctx, &database.Incident{
		Type:      database.IncidentSystemInit,
		Severity:  database.SeverityLow,
		Message:   "orchestrator started",
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("write init incident: %w", err)
	}

	if cfg.SchedulerConfig.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		logger.Warn().Msg("scheduler disabled, cycles run only on operator request")
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}

	return shutdown(cfg, sched, server, logger)
}

// shutdown drains in-flight cycles and requests. In-flight exchange orders
// are left to settle on their own.
func shutdown(cfg *config.Config, sched *scheduler.Scheduler, server *api.Server, logger zerolog.Logger) error {
	timeout := time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sched.Stop()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("orchestrator stopped")
	return nil
}

func runEmergencyStopAll() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.LoggingConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewDB(cfg.DatabaseConfig, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	repo := database.NewRepository(db)

	sched := scheduler.New(repo, nil, nil, events.NewBus(), logger)
	if err := sched.EmergencyStopAll(ctx); err != nil {
		return err
	}
	fmt.Println("all models forced to simulation")
	return nil
}

// runGenConfig writes a starter config.json with a freshly generated local
// encryption key
func runGenConfig() error {
	key, err := secrets.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate encryption key: %w", err)
	}

	cfg := config.Config{
		DatabaseConfig: config.DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "orchestrator",
			Password: "orchestrator",
			Database: "orchestrator",
			SSLMode:  "disable",
		},
		RedisConfig: config.RedisConfig{
			Enabled:  true,
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		VaultConfig: config.VaultConfig{
			Enabled:            false,
			MountPath:          "secret",
			SecretPath:         "trading-orchestrator",
			LocalEncryptionKey: key,
		},
		ServerConfig: config.ServerConfig{
			Port:            8080,
			Host:            "127.0.0.1",
			AllowedOrigins:  "*",
			ReadTimeout:     15,
			WriteTimeout:    15,
			ShutdownTimeout: 30,
		},
		LoggingConfig: config.LoggingConfig{Level: "info", Console: true},
		MarketConfig: config.MarketConfig{
			BaseURL:  "https://api.binance.com",
			Coins:    []string{"BTC", "ETH", "SOL", "BNB", "XRP", "DOGE"},
			CacheTTL: 30,
		},
		AIConfig: config.AIConfig{
			MaxTokens: 4096,
			Timeout:   60 * time.Second,
		},
		ExchangeConfig: config.ExchangeConfig{
			MainnetURL: "https://api.binance.com",
			TestnetURL: "https://testnet.binance.vision",
			Timeout:    30 * time.Second,
			MockMode:   false,
		},
		SchedulerConfig: config.SchedulerConfig{
			Enabled:                true,
			DefaultIntervalMinutes: 60,
			MinIntervalMinutes:     5,
			MaxIntervalMinutes:     1440,
		},
		NotificationConfig: config.NotificationConfig{Enabled: false},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile("config.json", append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config.json: %w", err)
	}
	fmt.Println("wrote config.json")
	return nil
}
