package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/raaihank/deidentifier/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g. DEID_SERVER_PORT.
const EnvPrefix = "DEID"

// enrichmentJSONKey holds the whole enrichment map as a JSON document so that
// nested per-entity settings can be supplied through a single variable.
const enrichmentJSONKey = "enrichment.configurations_json"

// envKeys are bound explicitly so overrides apply even when no config file
// mentions the key.
var envKeys = []string{
	"server.port",
	"server.environment",
	"defaults.language",
	"defaults.min_score",
	"defaults.entity_types",
	"defaults.anonymization_operator",
	"defaults.pseudonymization_method",
	"engine.type",
	"engine.presidio.analyzer_url",
	"enrichment.enabled",
	"enrichment.cache.enabled",
	"enrichment.cache.redis_url",
	"logging.level",
	"logging.format",
	"metrics.enabled",
	"websocket.enabled",
	"audit.enabled",
	"audit.database_url",
	"rate_limit.enabled",
	"rate_limit.requests_per_min",
	enrichmentJSONKey,
}

// Source reads configuration from one viper instance and can watch it.
type Source struct {
	v *viper.Viper
}

// NewSource prepares a configuration source. An empty path searches the
// usual locations for config.yaml.
func NewSource(configPath string) *Source {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/deidentifier/")
	v.AddConfigPath("$HOME/.deidentifier/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	return &Source{v: v}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewSource(configPath).Load()
}

// Load reads the file (if any), applies environment overrides and validates.
func (s *Source) Load() (*Config, error) {
	if err := s.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return s.decode()
}

func (s *Source) decode() (*Config, error) {
	config := GetDefaults()
	if err := s.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if raw := strings.TrimSpace(s.v.GetString(enrichmentJSONKey)); raw != "" {
		configurations, err := ParseEnrichmentConfigurations(raw)
		if err != nil {
			return nil, err
		}
		config.Enrichment.Configurations = configurations
	}
	config.Enrichment.Configurations = normalizeEnrichmentKeys(config.Enrichment.Configurations)
	config.Defaults.EntityTypes = splitList(config.Defaults.EntityTypes)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// ParseEnrichmentConfigurations decodes the JSON form of the enrichment map,
// e.g. {"PERSON": {"type": "http", "url": "http://names:8000/lookup"}}.
func ParseEnrichmentConfigurations(raw string) (map[string]EnrichmentEntityConfig, error) {
	configurations := map[string]EnrichmentEntityConfig{}
	if err := json.Unmarshal([]byte(raw), &configurations); err != nil {
		return nil, domain.NewConfigurationError("invalid enrichment configurations JSON", err)
	}
	return configurations, nil
}

// viper lower-cases map keys; entity types are upper case everywhere else.
func normalizeEnrichmentKeys(in map[string]EnrichmentEntityConfig) map[string]EnrichmentEntityConfig {
	out := make(map[string]EnrichmentEntityConfig, len(in))
	for k, v := range in {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}

// An env override arrives as one comma separated element.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.Environment != "production" && config.Server.Environment != "development" {
		return fmt.Errorf("invalid environment: %s (must be production or development)", config.Server.Environment)
	}

	if config.Defaults.MinScore < 0 || config.Defaults.MinScore > 1 {
		return fmt.Errorf("invalid default min_score: %v (must be between 0 and 1)", config.Defaults.MinScore)
	}

	if _, err := domain.ParseOperator(config.Defaults.AnonymizationOperator); err != nil {
		return err
	}

	if _, err := domain.ParseMethod(config.Defaults.PseudonymizationMethod); err != nil {
		return err
	}

	if config.Engine.Type != "builtin" && config.Engine.Type != "presidio" {
		return fmt.Errorf("invalid engine type: %s (must be builtin or presidio)", config.Engine.Type)
	}

	if config.Engine.Type == "presidio" && config.Engine.Presidio.AnalyzerURL == "" {
		return fmt.Errorf("presidio engine requires engine.presidio.analyzer_url")
	}

	for entityType, ec := range config.Enrichment.Configurations {
		if err := validateEnrichment(entityType, ec); err != nil {
			return err
		}
	}

	if config.Enrichment.Retry.MaxAttempts == 0 {
		return fmt.Errorf("enrichment retry max_attempts must be at least 1")
	}

	if config.Enrichment.Breaker.Enabled && config.Enrichment.Breaker.MaxFailures == 0 {
		return fmt.Errorf("enrichment breaker max_failures must be at least 1")
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit is enabled but audit.database_url is empty")
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	return nil
}

func validateEnrichment(entityType string, ec EnrichmentEntityConfig) error {
	if domain.EnrichmentType(strings.ToLower(ec.Type)) != domain.EnrichmentHTTP {
		return domain.NewConfigurationError(
			fmt.Sprintf("Unsupported enrichment type %q for entity type %s", ec.Type, entityType), nil)
	}

	u, err := url.Parse(ec.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.NewConfigurationError(
			fmt.Sprintf("invalid enrichment url %q for entity type %s", ec.URL, entityType), err)
	}

	switch strings.ToUpper(ec.HTTPMethod) {
	case "", "GET", "POST", "PUT", "PATCH":
	default:
		return domain.NewConfigurationError(
			fmt.Sprintf("unsupported enrichment http_method %q for entity type %s", ec.HTTPMethod, entityType), nil)
	}
	return nil
}

// Watch reloads the configuration whenever the file changes. Invalid
// revisions are reported through onError and the previous config stays active.
func (s *Source) Watch(callback func(*Config), onError func(error)) {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := s.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		callback(newConfig)
	})
	s.v.WatchConfig()
}

// ConfigFile returns the file in use, empty when running on defaults.
func (s *Source) ConfigFile() string {
	return s.v.ConfigFileUsed()
}
