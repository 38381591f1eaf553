package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Policy   PolicyDefaults `mapstructure:"policy"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Tokens   []TokenConfig  `mapstructure:"tokens"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	// Bootstrap admin credential; usable before any token is provisioned.
	AdminToken string `mapstructure:"admin_token"`
}

type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	AuditRetentionDays     int    `mapstructure:"audit_retention_days"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BackendConfig points at the bot-orchestration API every trading action
// is delegated to.
type BackendConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	RetryBackoffMs    int    `mapstructure:"retry_backoff_ms"`
	FillStreamURL     string `mapstructure:"fill_stream_url"`
	FillStreamEnabled bool   `mapstructure:"fill_stream_enabled"`
}

type LimitsConfig struct {
	WindowSeconds         int            `mapstructure:"window_seconds"`
	AdminPerMinute        int            `mapstructure:"admin_per_minute"`         // privileged admin actions (client creation etc.)
	AdminGeneralPerMinute int            `mapstructure:"admin_general_per_minute"` // remaining admin surface
	DefaultPerMinute      int            `mapstructure:"default_per_minute"`
	Tiers                 map[string]int `mapstructure:"tiers"`
	EdgeQPS               float64        `mapstructure:"edge_qps"`
	EdgeBurst             int            `mapstructure:"edge_burst"`
}

// PerMinute resolves the fixed-window quota for a rate tier.
func (l LimitsConfig) PerMinute(tier string) int {
	if n, ok := l.Tiers[tier]; ok && n > 0 {
		return n
	}
	return l.DefaultPerMinute
}

// PolicyDefaults seeds a policy for clients onboarded without an explicit
// one.
type PolicyDefaults struct {
	MaxSpreadPercent float64 `mapstructure:"max_spread_percent"`
	MaxDailyVolume   float64 `mapstructure:"max_daily_volume"`
}

type AuditConfig struct {
	Dir        string `mapstructure:"dir"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// TokenConfig seeds one bearer credential into the identity registry.
type TokenConfig struct {
	Token     string `mapstructure:"token"`
	ActorID   string `mapstructure:"actor_id"`
	Role      string `mapstructure:"role"`
	RateTier  string `mapstructure:"rate_tier"`
	ExpiresAt string `mapstructure:"expires_at"` // RFC3339, empty means no expiry
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. PIPEGATE_BACKEND_BASE_URL
	viper.SetEnvPrefix("pipegate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("auth.admin_token", "")
	viper.SetDefault("database.audit_retention_days", 90)
	viper.SetDefault("database.cleanup_interval_minutes", 60)
	viper.SetDefault("backend.base_url", "http://localhost:15888")
	viper.SetDefault("backend.timeout_seconds", 30)
	viper.SetDefault("backend.retry_backoff_ms", 250)
	viper.SetDefault("backend.fill_stream_enabled", false)
	viper.SetDefault("limits.window_seconds", 60)
	viper.SetDefault("limits.admin_per_minute", 20)
	viper.SetDefault("limits.admin_general_per_minute", 100)
	viper.SetDefault("limits.default_per_minute", 60)
	viper.SetDefault("limits.edge_qps", 50)
	viper.SetDefault("limits.edge_burst", 100)
	viper.SetDefault("policy.max_spread_percent", 0.5)
	viper.SetDefault("policy.max_daily_volume", 50000)
	viper.SetDefault("audit.dir", "./logs")
	viper.SetDefault("audit.buffer_size", 1024)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
