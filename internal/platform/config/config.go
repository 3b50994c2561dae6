package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Slack       SlackConfig     `mapstructure:"slack"`
	Gmail       GmailConfig     `mapstructure:"gmail"`
	Webhooks    WebhooksConfig  `mapstructure:"webhooks"`
	Retry       RetryConfig     `mapstructure:"retry"`
	Retention   RetentionConfig `mapstructure:"retention"`
	Indexer     IndexerConfig   `mapstructure:"indexer"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type SlackConfig struct {
	SigningSecret string `mapstructure:"signing_secret"`
	BotUserID     string `mapstructure:"bot_user_id"`
	// DefaultUserID receives Slack events whose author cannot be mapped
	// to an internal user.
	DefaultUserID string `mapstructure:"default_user_id"`
}

type GmailConfig struct {
	ChannelToken string `mapstructure:"channel_token"`
	// StrictToken rejects notifications whose channel token does not match
	// the one stored at watch creation. Gmail does not consistently echo
	// custom tokens, so the default is to log the mismatch and keep going.
	StrictToken bool `mapstructure:"strict_token"`
}

type WebhooksConfig struct {
	WorkerCount           int           `mapstructure:"worker_count"`
	QueueSize             int           `mapstructure:"queue_size"`
	DedupWindow           time.Duration `mapstructure:"dedup_window"`
	DefaultRetryCount     int           `mapstructure:"default_retry_count"`
	DefaultTimeoutSeconds int           `mapstructure:"default_timeout_seconds"`
}

type RetryConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
}

type RetentionConfig struct {
	MaxAge          time.Duration `mapstructure:"max_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type IndexerConfig struct {
	// Endpoint is the internal live-indexing consumer. Empty disables
	// forwarding.
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetEnvPrefix("beacon")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "production")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("database.path", "data/beacon.db")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("webhooks.worker_count", 4)
	viper.SetDefault("webhooks.queue_size", 256)
	viper.SetDefault("webhooks.dedup_window", "10m")
	viper.SetDefault("webhooks.default_retry_count", 3)
	viper.SetDefault("webhooks.default_timeout_seconds", 10)
	viper.SetDefault("retry.sweep_interval", "1m")
	viper.SetDefault("retry.batch_size", 100)
	viper.SetDefault("retention.max_age", "720h")
	viper.SetDefault("retention.cleanup_interval", "24h")
	viper.SetDefault("indexer.timeout", "10s")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
