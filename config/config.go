package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the application configuration. The threshold document that
// drives the decision core is a separate YAML file (see AdvisorConfig.
// ThresholdsPath); this struct only covers process wiring.
type Config struct {
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	RedisConfig        RedisConfig        `json:"redis"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	AdvisorConfig      AdvisorConfig      `json:"advisor"`
	FetcherConfig      FetcherConfig      `json:"fetcher"`
	BinanceConfig      BinanceConfig      `json:"binance"`
	NotificationConfig NotificationConfig `json:"notification"`
	CircuitConfig      CircuitConfig      `json:"circuit"`
	AuditConfig        AuditConfig        `json:"audit"`
}

// ServerConfig holds the HTTP API server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	ProductionMode  bool   `json:"production_mode"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`      // seconds
	WriteTimeout    int    `json:"write_timeout"`     // seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`  // seconds
	RateLimit       int    `json:"rate_limit"`        // requests per window per client
	RateLimitWindow int    `json:"rate_limit_window"` // seconds
}

// AuthConfig guards the mutating endpoints (threshold reload, state wipe)
type AuthConfig struct {
	Enabled         bool          `json:"enabled"`
	JWTSecret       string        `json:"jwt_secret"`
	TokenDuration   time.Duration `json:"token_duration"`
	AdminSecretHash string        `json:"admin_secret_hash"` // bcrypt hash, never the plain secret
}

// VaultConfig configures the optional HashiCorp Vault secret source
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig configures the optional decision-state mirror
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// DatabaseConfig configures the optional advisory history store
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// AdvisorConfig tunes the advisory engine
type AdvisorConfig struct {
	ThresholdsPath  string `json:"thresholds_path"`
	MetadataPolicy  string `json:"metadata_policy"` // warn, fail_fast, assume_percent_point
	TraceLimit      int    `json:"trace_limit"`     // retained pipeline traces per symbol
	CacheRetention  string `json:"cache_retention"` // duration past the widest lookback window
	EvictionEnabled bool   `json:"eviction_enabled"`
}

// FetcherConfig drives the market-data polling loop
type FetcherConfig struct {
	Enabled      bool     `json:"enabled"`
	Symbols      []string `json:"symbols"`
	PollInterval string   `json:"poll_interval"`
	Concurrency  int      `json:"concurrency"` // parallel symbol fetches per cycle
}

// BinanceConfig holds the public futures endpoint settings. The advisor only
// reads public market data; there are no API keys anywhere in this process.
type BinanceConfig struct {
	BaseURL  string `json:"base_url"`
	MockMode bool   `json:"mock_mode"` // Use simulated data when the exchange is unreachable
}

// NotificationConfig controls advisory notifications
type NotificationConfig struct {
	Enabled       bool   `json:"enabled"`
	MinConfidence string `json:"min_confidence"` // notify only at or above this confidence
	AlignedOnly   bool   `json:"aligned_only"`   // notify only when both horizons agree
	WebhookURL    string `json:"webhook_url"`
}

// CircuitConfig configures the data-source circuit breaker
type CircuitConfig struct {
	Enabled          bool `json:"enabled"`
	FailureThreshold int  `json:"failure_threshold"` // consecutive failures before opening
	CooldownSeconds  int  `json:"cooldown_seconds"`  // open duration before half-open probe
	ProbeCount       int  `json:"probe_count"`       // successes required to close again
}

// AuditConfig controls the append-only decision audit trail
type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	Output  string `json:"output"` // stderr or file path
}

// Load reads config.json (or $CONFIG_FILE) and applies environment
// overrides. A missing file is not an error; env vars alone can configure
// the process.
func Load() (*Config, error) {
	path := getEnvOrDefault("CONFIG_FILE", "config.json")
	cfg, err := loadFromFile(path)
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment always wins over the file.
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8087))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.ServerConfig.ProductionMode)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", defaultStr(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", defaultInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", defaultInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))
	cfg.ServerConfig.RateLimit = getEnvIntOrDefault("SERVER_RATE_LIMIT", defaultInt(cfg.ServerConfig.RateLimit, 120))
	cfg.ServerConfig.RateLimitWindow = getEnvIntOrDefault("SERVER_RATE_LIMIT_WINDOW", defaultInt(cfg.ServerConfig.RateLimitWindow, 60))

	// Auth config - ALWAYS apply from environment
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", defaultDuration(cfg.AuthConfig.TokenDuration, 24*time.Hour))
	cfg.AuthConfig.AdminSecretHash = getEnvOrDefault("AUTH_ADMIN_SECRET_HASH", cfg.AuthConfig.AdminSecretHash)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultStr(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultStr(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultStr(cfg.VaultConfig.SecretPath, "futures-advisor/service"))
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CA_CERT", cfg.VaultConfig.CACert)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", defaultStr(cfg.DatabaseConfig.User, "advisor"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", defaultStr(cfg.DatabaseConfig.Database, "futures_advisor"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DATABASE_SSL_MODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultStr(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Advisor config
	cfg.AdvisorConfig.ThresholdsPath = getEnvOrDefault("ADVISOR_THRESHOLDS_PATH", defaultStr(cfg.AdvisorConfig.ThresholdsPath, "config/thresholds.yaml"))
	cfg.AdvisorConfig.MetadataPolicy = getEnvOrDefault("ADVISOR_METADATA_POLICY", defaultStr(cfg.AdvisorConfig.MetadataPolicy, "warn"))
	cfg.AdvisorConfig.TraceLimit = getEnvIntOrDefault("ADVISOR_TRACE_LIMIT", defaultInt(cfg.AdvisorConfig.TraceLimit, 32))
	cfg.AdvisorConfig.CacheRetention = getEnvOrDefault("ADVISOR_CACHE_RETENTION", defaultStr(cfg.AdvisorConfig.CacheRetention, "30m"))
	cfg.AdvisorConfig.EvictionEnabled = getEnvBoolOrDefault("ADVISOR_EVICTION_ENABLED", cfg.AdvisorConfig.EvictionEnabled)

	// Fetcher config
	cfg.FetcherConfig.Enabled = getEnvBoolOrDefault("FETCHER_ENABLED", cfg.FetcherConfig.Enabled)
	if symbols := os.Getenv("FETCHER_SYMBOLS"); symbols != "" {
		cfg.FetcherConfig.Symbols = splitCSV(symbols)
	}
	if len(cfg.FetcherConfig.Symbols) == 0 {
		cfg.FetcherConfig.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	cfg.FetcherConfig.PollInterval = getEnvOrDefault("FETCHER_POLL_INTERVAL", defaultStr(cfg.FetcherConfig.PollInterval, "30s"))
	cfg.FetcherConfig.Concurrency = getEnvIntOrDefault("FETCHER_CONCURRENCY", defaultInt(cfg.FetcherConfig.Concurrency, 4))

	// Binance config - public market data only, no credential settings
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", defaultStr(cfg.BinanceConfig.BaseURL, "https://fapi.binance.com"))
	cfg.BinanceConfig.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.BinanceConfig.MockMode)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.MinConfidence = getEnvOrDefault("NOTIFICATIONS_MIN_CONFIDENCE", defaultStr(cfg.NotificationConfig.MinConfidence, "high"))
	cfg.NotificationConfig.AlignedOnly = getEnvBoolOrDefault("NOTIFICATIONS_ALIGNED_ONLY", cfg.NotificationConfig.AlignedOnly)
	cfg.NotificationConfig.WebhookURL = getEnvOrDefault("NOTIFICATIONS_WEBHOOK_URL", cfg.NotificationConfig.WebhookURL)

	// Circuit breaker config
	cfg.CircuitConfig.Enabled = getEnvBoolOrDefault("CIRCUIT_ENABLED", cfg.CircuitConfig.Enabled)
	cfg.CircuitConfig.FailureThreshold = getEnvIntOrDefault("CIRCUIT_FAILURE_THRESHOLD", defaultInt(cfg.CircuitConfig.FailureThreshold, 5))
	cfg.CircuitConfig.CooldownSeconds = getEnvIntOrDefault("CIRCUIT_COOLDOWN_SECONDS", defaultInt(cfg.CircuitConfig.CooldownSeconds, 120))
	cfg.CircuitConfig.ProbeCount = getEnvIntOrDefault("CIRCUIT_PROBE_COUNT", defaultInt(cfg.CircuitConfig.ProbeCount, 2))

	// Audit config
	cfg.AuditConfig.Enabled = getEnvBoolOrDefault("AUDIT_ENABLED", cfg.AuditConfig.Enabled)
	cfg.AuditConfig.Output = getEnvOrDefault("AUDIT_OUTPUT", defaultStr(cfg.AuditConfig.Output, "stderr"))
}

// validate rejects configurations that would start a broken process.
func (c *Config) validate() error {
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.ServerConfig.Port)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" && !c.VaultConfig.Enabled {
		return fmt.Errorf("config: auth enabled but AUTH_JWT_SECRET is empty and vault is disabled")
	}
	switch strings.ToLower(c.AdvisorConfig.MetadataPolicy) {
	case "warn", "fail_fast", "assume_percent_point":
	default:
		return fmt.Errorf("config: unknown metadata policy %q", c.AdvisorConfig.MetadataPolicy)
	}
	if _, err := time.ParseDuration(c.FetcherConfig.PollInterval); err != nil {
		return fmt.Errorf("config: invalid fetcher poll interval %q: %w", c.FetcherConfig.PollInterval, err)
	}
	if _, err := time.ParseDuration(c.AdvisorConfig.CacheRetention); err != nil {
		return fmt.Errorf("config: invalid cache retention %q: %w", c.AdvisorConfig.CacheRetention, err)
	}
	return nil
}

// PollInterval returns the parsed fetcher poll interval.
func (c *FetcherConfig) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Retention returns the parsed cache retention margin.
func (c *AdvisorConfig) Retention() time.Duration {
	d, err := time.ParseDuration(c.CacheRetention)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// DSN builds the Postgres connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
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

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}

func defaultStr(current, fallback string) string {
	if current != "" {
		return current
	}
	return fallback
}

func defaultInt(current, fallback int) int {
	if current != 0 {
		return current
	}
	return fallback
}

func defaultDuration(current, fallback time.Duration) time.Duration {
	if current != 0 {
		return current
	}
	return fallback
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

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
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

// GenerateSampleConfig writes a commented starting-point config.json.
func GenerateSampleConfig(filename string) error {
	sample := &Config{}
	applyEnvOverrides(sample)
	sample.AuthConfig.JWTSecret = "change-me"

	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling sample config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("error writing sample config: %w", err)
	}

	return nil
}
