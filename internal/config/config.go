package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Session   SessionConfig   `mapstructure:"session"`
	Detection DetectionConfig `mapstructure:"detection"`
	Persona   PersonaConfig   `mapstructure:"persona"`
	Callback  CallbackConfig  `mapstructure:"callback"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig holds the shared key callers present in the x-api-key header
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	MirrorTTL time.Duration `mapstructure:"mirror_ttl"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Schema          string        `mapstructure:"schema"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.Schema,
	)
}

type Neo4jConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	URI                string `mapstructure:"uri"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	Database           string `mapstructure:"database"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MaxLifetimeMinutes int    `mapstructure:"max_lifetime_minutes"`
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	StreamName    string `mapstructure:"stream_name"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// SessionConfig controls the session store and its sweep loop
type SessionConfig struct {
	NotifyAfterIdle time.Duration `mapstructure:"notify_after_idle"`
	EvictAfterIdle  time.Duration `mapstructure:"evict_after_idle"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	SecondsPerTurn  int           `mapstructure:"seconds_per_turn"`
	ReplyMemory     int           `mapstructure:"reply_memory"`
	MaxNotes        int           `mapstructure:"max_notes"`
	EventBuffer     int           `mapstructure:"event_buffer"`
}

// DetectionConfig tunes the additive scam classifier
type DetectionConfig struct {
	Threshold    int `mapstructure:"threshold"`
	HistoryBonus int `mapstructure:"history_bonus"`
}

// PersonaConfig tunes reply selection
type PersonaConfig struct {
	Seed             uint64  `mapstructure:"seed"`
	MaxAttempts      int     `mapstructure:"max_attempts"`
	OverlapThreshold float64 `mapstructure:"overlap_threshold"`
	RecentWindow     int     `mapstructure:"recent_window"`
}

// CallbackConfig describes the external evaluator endpoint
type CallbackConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	URL             string        `mapstructure:"url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      uint64        `mapstructure:"max_retries"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	NotifyEveryTurn bool          `mapstructure:"notify_every_turn"`
}

// setDefaults registers a default for every key so the service runs without a file
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "honeypot-lab")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 25*time.Second)

	v.SetDefault("auth.api_key", "")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"*"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests_per_minute", 600)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.time_format", time.RFC3339)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "honeypot:")
	v.SetDefault("redis.mirror_ttl", 24*time.Hour)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "honeypot")
	v.SetDefault("database.dbname", "honeypot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.schema", "public")

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.max_connections", 20)
	v.SetDefault("neo4j.max_lifetime_minutes", 60)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.stream_name", "HONEYPOT_INTEL")
	v.SetDefault("nats.subject_prefix", "honeypot")

	v.SetDefault("session.notify_after_idle", 5*time.Minute)
	v.SetDefault("session.evict_after_idle", 30*time.Minute)
	v.SetDefault("session.sweep_interval", time.Minute)
	v.SetDefault("session.seconds_per_turn", 25)
	v.SetDefault("session.reply_memory", 8)
	v.SetDefault("session.max_notes", 200)
	v.SetDefault("session.event_buffer", 1024)

	v.SetDefault("detection.threshold", 3)
	v.SetDefault("detection.history_bonus", 2)

	v.SetDefault("persona.seed", 0)
	v.SetDefault("persona.max_attempts", 10)
	v.SetDefault("persona.overlap_threshold", 0.75)
	v.SetDefault("persona.recent_window", 8)

	v.SetDefault("callback.enabled", true)
	v.SetDefault("callback.url", "")
	v.SetDefault("callback.timeout", 10*time.Second)
	v.SetDefault("callback.max_retries", 0)
	v.SetDefault("callback.retry_interval", 2*time.Second)
	v.SetDefault("callback.workers", 4)
	v.SetDefault("callback.queue_size", 256)
	v.SetDefault("callback.notify_every_turn", false)
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if c.Detection.Threshold < 1 {
		return fmt.Errorf("detection.threshold must be at least 1, got %d", c.Detection.Threshold)
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session.sweep_interval must be positive")
	}
	if c.Session.EvictAfterIdle < c.Session.NotifyAfterIdle {
		return fmt.Errorf("session.evict_after_idle (%s) must not be shorter than session.notify_after_idle (%s)",
			c.Session.EvictAfterIdle, c.Session.NotifyAfterIdle)
	}
	if c.Persona.OverlapThreshold <= 0 || c.Persona.OverlapThreshold > 1 {
		return fmt.Errorf("persona.overlap_threshold must be in (0,1], got %.2f", c.Persona.OverlapThreshold)
	}
	return nil
}

// Load reads configuration from an optional file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/honeypot-lab")
	}

	// Environment variables
	v.SetEnvPrefix("HONEYPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file; a missing default file is fine, defaults and env cover it
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}
