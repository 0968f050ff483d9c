// Package validator normalizes requested entity types and checks them against
// what the detection engine supports.
package validator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/logger"
)

// SupportedSource reports the entity types an engine can detect.
type SupportedSource interface {
	SupportedEntities(ctx context.Context, language string) ([]string, error)
}

// EntityTypeValidator caches the supported set per language after the first
// successful lookup.
type EntityTypeValidator struct {
	source    SupportedSource
	mu        sync.Mutex
	supported map[string]map[string]bool
	logger    *logger.Logger
}

func New(source SupportedSource, log *logger.Logger) *EntityTypeValidator {
	if log == nil {
		log = logger.Nop()
	}
	return &EntityTypeValidator{
		source:    source,
		supported: make(map[string]map[string]bool),
		logger:    log.WithComponent("validator"),
	}
}

// Validate uppercases and deduplicates entityTypes, preserving order. An
// empty list stays empty, which downstream means every supported type.
func (v *EntityTypeValidator) Validate(ctx context.Context, language string, entityTypes []string) ([]string, error) {
	if len(entityTypes) == 0 {
		return []string{}, nil
	}

	supported, err := v.supportedSet(ctx, language)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(entityTypes))
	normalized := make([]string, 0, len(entityTypes))
	var unsupported []string
	for _, raw := range entityTypes {
		t := strings.ToUpper(strings.TrimSpace(raw))
		if seen[t] {
			continue
		}
		seen[t] = true
		if !supported[t] {
			unsupported = append(unsupported, t)
			continue
		}
		normalized = append(normalized, t)
	}

	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		v.logger.Warn("Unsupported entity types provided", zap.Strings("unsupported_entities", unsupported))
		return nil, domain.NewEntityTypeValidationError(unsupported)
	}
	return normalized, nil
}

// SupportedEntities returns the sorted supported set for language.
func (v *EntityTypeValidator) SupportedEntities(ctx context.Context, language string) ([]string, error) {
	supported, err := v.supportedSet(ctx, language)
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(supported))
	for t := range supported {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

func (v *EntityTypeValidator) supportedSet(ctx context.Context, language string) (map[string]bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if set, ok := v.supported[language]; ok {
		return set, nil
	}

	types, err := v.source.SupportedEntities(ctx, language)
	if err != nil {
		if domain.IsClientError(err) {
			return nil, err
		}
		return nil, domain.NewAnalysisError("failed to load supported entity types", err)
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToUpper(t)] = true
	}
	v.supported[language] = set
	v.logger.Debug("Supported entity types loaded",
		zap.String("language", language),
		zap.Int("count", len(set)))
	return set, nil
}
