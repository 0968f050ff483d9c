package enrichment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/logger"
)

// Cache stores enrichment values by (entity type, entity text).
type Cache interface {
	Get(ctx context.Context, entityType, text string) (string, bool)
	Set(ctx context.Context, entityType, text, value string) error
}

// Manager resolves the enricher of an entity type from configuration. The
// configured map is the only source of enrichable types.
type Manager struct {
	mu      sync.RWMutex
	configs map[string]config.EnrichmentEntityConfig
	enabled bool

	client Doer
	cache  Cache
	logger *logger.Logger
}

// NewManager builds a manager. cache may be nil.
func NewManager(cfg config.EnrichmentConfig, client Doer, cache Cache, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	m := &Manager{
		client: client,
		cache:  cache,
		logger: log.WithComponent("enrichment_manager"),
	}
	m.Update(cfg)
	return m
}

// Update swaps in a new configuration, e.g. after a config file reload.
func (m *Manager) Update(cfg config.EnrichmentConfig) {
	configs := make(map[string]config.EnrichmentEntityConfig, len(cfg.Configurations))
	for entityType, ec := range cfg.Configurations {
		configs[strings.ToUpper(entityType)] = ec
	}

	m.mu.Lock()
	m.configs = configs
	m.enabled = cfg.Enabled
	m.mu.Unlock()

	m.logger.Info("Enrichment configuration loaded",
		zap.Bool("enabled", cfg.Enabled),
		zap.Strings("entity_types", sortedKeys(configs)))
}

// Enabled reports the global enrichment switch.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// EnrichableTypes lists the entity types with an enricher configured.
func (m *Manager) EnrichableTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.configs)
}

// IsEnrichable reports whether entityType has an enricher configured.
func (m *Manager) IsEnrichable(entityType string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.configs[entityType]
	return ok
}

// EnricherFor returns nil when no enricher is configured for the type, and a
// configuration error when the configured enrichment type is unknown.
func (m *Manager) EnricherFor(entityType string) (Enricher, error) {
	m.mu.RLock()
	ec, ok := m.configs[entityType]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var enricher Enricher
	switch domain.EnrichmentType(strings.ToLower(ec.Type)) {
	case domain.EnrichmentHTTP:
		enricher = NewHTTPEnricher(ec, m.client, m.logger)
	default:
		return nil, domain.NewConfigurationError(
			fmt.Sprintf("Unsupported enrichment type %q for entity type %s", ec.Type, entityType), nil)
	}

	if m.cache != nil {
		enricher = &cachedEnricher{next: enricher, cache: m.cache}
	}
	return enricher, nil
}

type cachedEnricher struct {
	next  Enricher
	cache Cache
}

func (c *cachedEnricher) Enrich(ctx context.Context, entity domain.Entity) (string, error) {
	if value, ok := c.cache.Get(ctx, entity.Type, entity.Text); ok {
		return value, nil
	}
	value, err := c.next.Enrich(ctx, entity)
	if err != nil || value == "" {
		return value, err
	}
	// a failed write only costs a future remote call
	_ = c.cache.Set(ctx, entity.Type, entity.Text, value)
	return value, nil
}

func sortedKeys(m map[string]config.EnrichmentEntityConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
