// Package privacy is the in-process PII recognizer: checksum-validated
// pattern rules plus configurable deny lists for names and places.
package privacy

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

// Detector handles PII detection
type Detector struct {
	mu        sync.RWMutex
	rules     []DetectionRule
	enabled   map[string]bool
	languages map[string]bool
	logger    *logger.Logger
}

// New creates a new PII detector instance
func New(cfg config.BuiltinConfig, log *logger.Logger) (*Detector, error) {
	if log == nil {
		log = logger.Nop()
	}

	rules := GetDefaultRules()
	denyLists := DefaultDenyLists()
	for entityType, terms := range cfg.DenyLists {
		denyLists[strings.ToUpper(entityType)] = terms
	}
	for _, entityType := range sortedKeys(denyLists) {
		if rule, ok := NewDenyListRule(entityType, denyLists[entityType]); ok {
			rules = append(rules, rule)
		}
	}

	detector := &Detector{
		rules:     rules,
		enabled:   make(map[string]bool),
		languages: make(map[string]bool),
		logger:    log.WithComponent("privacy"),
	}

	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{domain.LanguageEnglish}
	}
	for _, lang := range languages {
		detector.languages[strings.ToLower(lang)] = true
	}

	detectors := cfg.Detectors
	if len(detectors) == 0 {
		detectors = []string{"all"}
	}
	if err := detector.configureDetectors(detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	detector.logger.Info("Privacy detector initialized",
		zap.Int("total_rules", len(detector.rules)),
		zap.Strings("enabled_rules", detector.enabledRules()),
		zap.Strings("languages", detector.SupportedLanguages()),
	)

	return detector, nil
}

// configureDetectors enables rules by name or by entity type; "all" enables
// every rule.
func (d *Detector) configureDetectors(detectors []string) error {
	for _, rule := range d.rules {
		d.enabled[rule.Name] = false
	}

	for _, detector := range detectors {
		if detector == "all" {
			for _, rule := range d.rules {
				d.enabled[rule.Name] = true
			}
			continue
		}

		found := false
		for _, rule := range d.rules {
			if rule.Name == detector || rule.EntityType == detector {
				d.enabled[rule.Name] = true
				found = true
			}
		}
		if !found {
			return fmt.Errorf("unknown detector: %s", detector)
		}
	}

	return nil
}

// Analyze runs every enabled rule allowed by opts over text. Offsets are
// byte offsets into text.
func (d *Detector) Analyze(ctx context.Context, text string, opts domain.AnalysisOptions) ([]domain.Entity, error) {
	if !d.supportsLanguage(opts.Language) {
		return nil, domain.NewUnsupportedLanguageError(opts.Language)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	entities := make([]domain.Entity, 0)
	for _, rule := range d.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !d.enabled[rule.Name] || !opts.Allows(rule.EntityType) || rule.Score < opts.MinScore {
			continue
		}

		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			match := text[loc[0]:loc[1]]
			if rule.Validate != nil && !rule.Validate(match) {
				continue
			}
			entities = append(entities, domain.Entity{
				Type:  rule.EntityType,
				Start: loc[0],
				End:   loc[1],
				Score: rule.Score,
				Text:  match,
			})
		}
	}

	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return entities[i].Score > entities[j].Score
	})

	if len(entities) > 0 {
		d.logger.Debug("PII detected", zap.Int("count", len(entities)))
	}
	return entities, nil
}

// SupportedEntities lists the entity types of the enabled rules.
func (d *Detector) SupportedEntities(_ context.Context, language string) ([]string, error) {
	if !d.supportsLanguage(language) {
		return nil, domain.NewUnsupportedLanguageError(language)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]bool)
	var types []string
	for _, rule := range d.rules {
		if d.enabled[rule.Name] && !seen[rule.EntityType] {
			seen[rule.EntityType] = true
			types = append(types, rule.EntityType)
		}
	}
	sort.Strings(types)
	return types, nil
}

// SupportedLanguages returns the configured language codes.
func (d *Detector) SupportedLanguages() []string {
	langs := make([]string, 0, len(d.languages))
	for lang := range d.languages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

func (d *Detector) supportsLanguage(language string) bool {
	return d.languages[strings.ToLower(language)]
}

// enabledRules returns a sorted list of enabled rule names
func (d *Detector) enabledRules() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var enabled []string
	for ruleName, isEnabled := range d.enabled {
		if isEnabled {
			enabled = append(enabled, ruleName)
		}
	}
	sort.Strings(enabled)
	return enabled
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
