package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Sync      SyncConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings for the push idempotency store
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// SyncConfig holds change-capture and sync protocol configuration
type SyncConfig struct {
	DefaultBatchSize    int           // pull batch size when the client sends none
	MaxBatchSize        int           // hard cap on pull batch size
	PushIdempotencyTTL  time.Duration // how long push submission keys are remembered
	ChangeLogRetention  time.Duration // age after which change records may be purged
	TombstoneRetention  time.Duration // age after which tombstones may be purged
	AuditLogRetention   time.Duration // age after which audit entries may be purged
	SessionAbandonAfter time.Duration // idle time before a session stops pinning retention
	RetentionInterval   time.Duration // how often the retention job runs
	RetentionBatchSize  int           // max rows deleted per retention statement
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	ServiceName       string
	CollectorEndpoint string
	SamplingRatio     float64
	MetricInterval    time.Duration
	Insecure          bool
}

// Load reads configuration from config.toml and POS_-prefixed environment
// variables, applying defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Sync: SyncConfig{
			DefaultBatchSize:    v.GetInt("sync.default_batch_size"),
			MaxBatchSize:        v.GetInt("sync.max_batch_size"),
			PushIdempotencyTTL:  v.GetDuration("sync.push_idempotency_ttl"),
			ChangeLogRetention:  v.GetDuration("sync.change_log_retention"),
			TombstoneRetention:  v.GetDuration("sync.tombstone_retention"),
			AuditLogRetention:   v.GetDuration("sync.audit_log_retention"),
			SessionAbandonAfter: v.GetDuration("sync.session_abandon_after"),
			RetentionInterval:   v.GetDuration("sync.retention_interval"),
			RetentionBatchSize:  v.GetInt("sync.retention_batch_size"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			ServiceName:       v.GetString("telemetry.service_name"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			MetricInterval:    v.GetDuration("telemetry.metric_interval"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pos-backend")
	v.SetDefault("app.env", "development")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "pos")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.conn_max_idle_time", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("sync.default_batch_size", 200)
	v.SetDefault("sync.max_batch_size", 1000)
	v.SetDefault("sync.push_idempotency_ttl", 24*time.Hour)
	v.SetDefault("sync.change_log_retention", 30*24*time.Hour)
	v.SetDefault("sync.tombstone_retention", 30*24*time.Hour)
	v.SetDefault("sync.audit_log_retention", 365*24*time.Hour)
	v.SetDefault("sync.session_abandon_after", 90*24*time.Hour)
	v.SetDefault("sync.retention_interval", time.Hour)
	v.SetDefault("sync.retention_batch_size", 5000)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "pos-backend")
	v.SetDefault("telemetry.collector_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.metric_interval", 60*time.Second)
	v.SetDefault("telemetry.insecure", true)
}

// Validate checks the configuration for values that would misbehave at runtime
func (c *Config) Validate() error {
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Sync.DefaultBatchSize <= 0 {
		return fmt.Errorf("sync.default_batch_size must be positive, got %d", c.Sync.DefaultBatchSize)
	}
	if c.Sync.MaxBatchSize < c.Sync.DefaultBatchSize {
		return fmt.Errorf("sync.max_batch_size (%d) must not be smaller than sync.default_batch_size (%d)",
			c.Sync.MaxBatchSize, c.Sync.DefaultBatchSize)
	}
	if c.Sync.RetentionBatchSize <= 0 {
		return fmt.Errorf("sync.retention_batch_size must be positive, got %d", c.Sync.RetentionBatchSize)
	}
	if c.Sync.ChangeLogRetention <= 0 {
		return fmt.Errorf("sync.change_log_retention must be positive")
	}
	if c.Sync.AuditLogRetention < c.Sync.ChangeLogRetention {
		return fmt.Errorf("sync.audit_log_retention must not be shorter than sync.change_log_retention")
	}
	return nil
}

// IsProduction returns true when running in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address in host:port form
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
