package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	VaultConfig        VaultConfig        `json:"vault"`
	ServerConfig       ServerConfig       `json:"server"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	MarketConfig       MarketConfig       `json:"market"`
	AIConfig           AIConfig           `json:"ai"`
	ExchangeConfig     ExchangeConfig     `json:"exchange"`
	SchedulerConfig    SchedulerConfig    `json:"scheduler"`
	NotificationConfig NotificationConfig `json:"notification"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings for the market-data cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration for exchange credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for exchange keys
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
	// Key for secretbox encryption of DB-stored credentials when Vault is
	// disabled. 32 bytes, hex-encoded.
	LocalEncryptionKey string `json:"local_encryption_key"`
}

// ServerConfig holds the operator HTTP API settings
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// LoggingConfig controls zerolog output
type LoggingConfig struct {
	Level   string `json:"level"`   // debug, info, warn, error
	Console bool   `json:"console"` // Pretty console writer instead of JSON
}

// MarketConfig holds market-data settings
type MarketConfig struct {
	BaseURL  string   `json:"base_url"`  // Binance public REST endpoint
	Coins    []string `json:"coins"`     // Fixed trading basket, bare coin symbols
	CacheTTL int      `json:"cache_ttl"` // Seconds a snapshot stays fresh
}

// AIConfig holds AI provider settings shared by all models
type AIConfig struct {
	ClaudeAPIKey   string        `json:"claude_api_key"`
	OpenAIAPIKey   string        `json:"openai_api_key"`
	DeepSeekAPIKey string        `json:"deepseek_api_key"`
	MaxTokens      int           `json:"max_tokens"`
	Timeout        time.Duration `json:"timeout"`
}

// ExchangeConfig holds exchange endpoint settings; API keys are per-model
type ExchangeConfig struct {
	MainnetURL string        `json:"mainnet_url"`
	TestnetURL string        `json:"testnet_url"`
	Timeout    time.Duration `json:"timeout"`
	MockMode   bool          `json:"mock_mode"` // Use a simulated exchange client
}

// SchedulerConfig holds cycle scheduling settings
type SchedulerConfig struct {
	Enabled                bool `json:"enabled"`
	DefaultIntervalMinutes int  `json:"default_interval_minutes"`
	MinIntervalMinutes     int  `json:"min_interval_minutes"`
	MaxIntervalMinutes     int  `json:"max_interval_minutes"`
}

// NotificationConfig holds operator notification settings
type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// Load reads config.json if present and applies environment overrides on top.
func Load() (*Config, error) {
	cfg, err := loadFromFile(getEnvOrDefault("CONFIG_FILE", "config.json"))
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Exchange and AI API keys from the environment act as fallbacks only;
// per-model credentials stored in the database take precedence at runtime.
func applyEnvOverrides(cfg *Config) {
	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultString(cfg.DatabaseConfig.User, "orchestrator"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultString(cfg.DatabaseConfig.Database, "orchestrator"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true" || cfg.RedisConfig.Enabled
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Vault
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true" || cfg.VaultConfig.Enabled
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultString(cfg.VaultConfig.SecretPath, "orchestrator/exchange-keys"))
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true" || cfg.VaultConfig.TLSEnabled
	cfg.VaultConfig.LocalEncryptionKey = getEnvOrDefault("CREDENTIAL_ENCRYPTION_KEY", cfg.VaultConfig.LocalEncryptionKey)

	// Server
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultString(cfg.ServerConfig.Host, "127.0.0.1"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", defaultString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", defaultInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", defaultInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.Console = getEnvOrDefault("LOG_CONSOLE", "false") == "true" || cfg.LoggingConfig.Console

	// Market data
	cfg.MarketConfig.BaseURL = getEnvOrDefault("MARKET_BASE_URL", defaultString(cfg.MarketConfig.BaseURL, "https://api.binance.com"))
	cfg.MarketConfig.CacheTTL = getEnvIntOrDefault("MARKET_CACHE_TTL", defaultInt(cfg.MarketConfig.CacheTTL, 30))
	if len(cfg.MarketConfig.Coins) == 0 {
		cfg.MarketConfig.Coins = []string{"BTC", "ETH", "BNB", "SOL", "XRP", "DOGE"}
	}

	// AI
	cfg.AIConfig.ClaudeAPIKey = getEnvOrDefault("AI_CLAUDE_API_KEY", cfg.AIConfig.ClaudeAPIKey)
	cfg.AIConfig.OpenAIAPIKey = getEnvOrDefault("AI_OPENAI_API_KEY", cfg.AIConfig.OpenAIAPIKey)
	cfg.AIConfig.DeepSeekAPIKey = getEnvOrDefault("AI_DEEPSEEK_API_KEY", cfg.AIConfig.DeepSeekAPIKey)
	cfg.AIConfig.MaxTokens = getEnvIntOrDefault("AI_MAX_TOKENS", defaultInt(cfg.AIConfig.MaxTokens, 2048))
	cfg.AIConfig.Timeout = getEnvDurationOrDefault("AI_TIMEOUT", defaultDuration(cfg.AIConfig.Timeout, 60*time.Second))

	// Exchange
	cfg.ExchangeConfig.MainnetURL = getEnvOrDefault("EXCHANGE_MAINNET_URL", defaultString(cfg.ExchangeConfig.MainnetURL, "https://api.binance.com"))
	cfg.ExchangeConfig.TestnetURL = getEnvOrDefault("EXCHANGE_TESTNET_URL", defaultString(cfg.ExchangeConfig.TestnetURL, "https://testnet.binance.vision"))
	cfg.ExchangeConfig.Timeout = getEnvDurationOrDefault("EXCHANGE_TIMEOUT", defaultDuration(cfg.ExchangeConfig.Timeout, 30*time.Second))
	cfg.ExchangeConfig.MockMode = getEnvOrDefault("EXCHANGE_MOCK_MODE", "false") == "true" || cfg.ExchangeConfig.MockMode

	// Scheduler
	cfg.SchedulerConfig.Enabled = getEnvOrDefault("SCHEDULER_ENABLED", "true") == "true"
	cfg.SchedulerConfig.DefaultIntervalMinutes = getEnvIntOrDefault("SCHEDULER_DEFAULT_INTERVAL", defaultInt(cfg.SchedulerConfig.DefaultIntervalMinutes, 60))
	cfg.SchedulerConfig.MinIntervalMinutes = getEnvIntOrDefault("SCHEDULER_MIN_INTERVAL", defaultInt(cfg.SchedulerConfig.MinIntervalMinutes, 5))
	cfg.SchedulerConfig.MaxIntervalMinutes = getEnvIntOrDefault("SCHEDULER_MAX_INTERVAL", defaultInt(cfg.SchedulerConfig.MaxIntervalMinutes, 1440))

	// Notifications
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "false") == "true" || cfg.NotificationConfig.Enabled
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true" || cfg.NotificationConfig.Telegram.Enabled
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", "false") == "true" || cfg.NotificationConfig.Discord.Enabled
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func defaultDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

// GenerateSampleConfig writes a starter configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "orchestrator",
			Password: "orchestrator_password",
			Database: "orchestrator",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Enabled:  false,
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		LoggingConfig: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		MarketConfig: MarketConfig{
			BaseURL:  "https://api.binance.com",
			Coins:    []string{"BTC", "ETH", "BNB", "SOL", "XRP", "DOGE"},
			CacheTTL: 30,
		},
		SchedulerConfig: SchedulerConfig{
			Enabled:                true,
			DefaultIntervalMinutes: 60,
			MinIntervalMinutes:     5,
			MaxIntervalMinutes:     1440,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
