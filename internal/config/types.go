package config

import (
	"time"

	"github.com/raaihank/deidentifier/internal/domain"
)

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Defaults   DefaultsConfig   `yaml:"defaults" mapstructure:"defaults"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	WebSocket  WebSocketConfig  `yaml:"websocket" mapstructure:"websocket"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	Environment  string        `yaml:"environment" mapstructure:"environment"` // production or development
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// IsProduction reports whether internal error details must be hidden.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// DefaultsConfig holds the values applied when a request omits them.
type DefaultsConfig struct {
	Language               string   `yaml:"language" mapstructure:"language"`
	MinScore               float64  `yaml:"min_score" mapstructure:"min_score"`
	EntityTypes            []string `yaml:"entity_types" mapstructure:"entity_types"`
	AnonymizationOperator  string   `yaml:"anonymization_operator" mapstructure:"anonymization_operator"`
	PseudonymizationMethod string   `yaml:"pseudonymization_method" mapstructure:"pseudonymization_method"`
}

// EngineConfig selects and configures the detection engine.
type EngineConfig struct {
	Type     string         `yaml:"type" mapstructure:"type"` // builtin or presidio
	Presidio PresidioConfig `yaml:"presidio" mapstructure:"presidio"`
	Builtin  BuiltinConfig  `yaml:"builtin" mapstructure:"builtin"`
}

// PresidioConfig points at a presidio-analyzer REST deployment.
type PresidioConfig struct {
	AnalyzerURL string        `yaml:"analyzer_url" mapstructure:"analyzer_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// BuiltinConfig configures the in-process recognizers.
type BuiltinConfig struct {
	Languages []string            `yaml:"languages" mapstructure:"languages"`
	Detectors []string            `yaml:"detectors" mapstructure:"detectors"`
	DenyLists map[string][]string `yaml:"deny_lists" mapstructure:"deny_lists"`
}

// EnrichmentConfig contains pseudonym enrichment settings.
type EnrichmentConfig struct {
	Enabled        bool                              `yaml:"enabled" mapstructure:"enabled"`
	Configurations map[string]EnrichmentEntityConfig `yaml:"configurations" mapstructure:"configurations"`
	Retry          RetryConfig                       `yaml:"retry" mapstructure:"retry"`
	Breaker        BreakerConfig                     `yaml:"breaker" mapstructure:"breaker"`
	Cache          EnrichmentCacheConfig             `yaml:"cache" mapstructure:"cache"`
}

// EnrichmentEntityConfig configures the enricher of one entity type.
type EnrichmentEntityConfig struct {
	Type        string `yaml:"type" mapstructure:"type" json:"type"`
	URL         string `yaml:"url" mapstructure:"url" json:"url"`
	Timeout     int    `yaml:"timeout" mapstructure:"timeout" json:"timeout"` // seconds
	RequestKey  string `yaml:"request_key" mapstructure:"request_key" json:"request_key"`
	ResponseKey string `yaml:"response_key" mapstructure:"response_key" json:"response_key"`
	HTTPMethod  string `yaml:"http_method" mapstructure:"http_method" json:"http_method"`
}

// RetryConfig bounds retries of enrichment calls.
type RetryConfig struct {
	MaxAttempts     uint          `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval" mapstructure:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" mapstructure:"max_interval"`
}

// BreakerConfig configures the circuit breaker guarding enrichment hosts.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxFailures uint32        `yaml:"max_failures" mapstructure:"max_failures"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EnrichmentCacheConfig configures the redis cache of enrichment lookups.
type EnrichmentCacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL  string        `yaml:"redis_url" mapstructure:"redis_url"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Path      string `yaml:"path" mapstructure:"path"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Path           string        `yaml:"path" mapstructure:"path"`
	Username       string        `yaml:"username" mapstructure:"username"`
	Password       string        `yaml:"password" mapstructure:"password"`
	PingInterval   time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AuditConfig contains the statistics store settings.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// RateLimitConfig limits API calls per client IP.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// BatchConfig contains batch pipeline settings.
type BatchConfig struct {
	BatchSize      int `yaml:"batch_size" mapstructure:"batch_size"`
	ProgressReport int `yaml:"progress_report" mapstructure:"progress_report"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			Environment:  "development",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		Defaults: DefaultsConfig{
			Language:               domain.LanguageEnglish,
			MinScore:               0.5,
			EntityTypes:            []string{},
			AnonymizationOperator:  string(domain.OperatorReplace),
			PseudonymizationMethod: string(domain.MethodRandomNumber),
		},
		Engine: EngineConfig{
			Type: "builtin",
			Presidio: PresidioConfig{
				AnalyzerURL: "http://localhost:5002",
				Timeout:     30 * time.Second,
			},
			Builtin: BuiltinConfig{
				Languages: []string{domain.LanguageEnglish},
				Detectors: []string{"all"},
				DenyLists: map[string][]string{},
			},
		},
		Enrichment: EnrichmentConfig{
			Enabled:        false,
			Configurations: map[string]EnrichmentEntityConfig{},
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: time.Second,
				MaxInterval:     5 * time.Second,
			},
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
			},
			Cache: EnrichmentCacheConfig{
				Enabled:   false,
				RedisURL:  "redis://localhost:6379/0",
				TTL:       time.Hour,
				KeyPrefix: "deid:enrichment",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "deidentifier",
		},
		WebSocket: WebSocketConfig{
			Enabled:        false,
			Path:           "/ws",
			PingInterval:   54 * time.Second,
			PongTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxMessageSize: 512,
			AllowedOrigins: []string{"*"},
		},
		Audit: AuditConfig{
			Enabled:         false,
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:        false,
			RequestsPerMin: 600,
			Burst:          50,
		},
		Batch: BatchConfig{
			BatchSize:      500,
			ProgressReport: 1000,
		},
	}
	cfg.Logging.File.Path = "logs/deidentifier.log"
	return cfg
}
