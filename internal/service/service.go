// Package service orchestrates de-identification: it resolves request
// defaults, validates entity types, wires operators and pseudonymization
// methods, delegates detection and rewriting to the engine and shapes the
// typed results.
package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/logger"
)

// Validator normalizes requested entity types.
type Validator interface {
	Validate(ctx context.Context, language string, entityTypes []string) ([]string, error)
}

// Operation names the kind of call an Event reports.
type Operation string

const (
	OperationAnalyze      Operation = "analyze"
	OperationAnonymize    Operation = "anonymize"
	OperationPseudonymize Operation = "pseudonymize"
)

// Event summarizes one completed call. It carries counts only, never
// entity text.
type Event struct {
	RequestID    string
	Operation    Operation
	Scope        domain.Scope
	EntityCounts domain.Stats
	Duration     time.Duration
	Timestamp    time.Time
}

// Observer receives an Event after every successful call.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// Observers fans an event out to several observers.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, event Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, event)
		}
	}
}

// Defaults are the process-wide fallbacks for unset request fields.
type Defaults struct {
	Language               string
	MinScore               float64
	EntityTypes            []string
	AnonymizationOperator  domain.Operator
	PseudonymizationMethod domain.MethodID
}

// DefaultsFromConfig converts the configured defaults section.
func DefaultsFromConfig(cfg config.DefaultsConfig) Defaults {
	return Defaults{
		Language:               cfg.Language,
		MinScore:               cfg.MinScore,
		EntityTypes:            cfg.EntityTypes,
		AnonymizationOperator:  domain.Operator(strings.ToLower(cfg.AnonymizationOperator)),
		PseudonymizationMethod: domain.MethodID(strings.ToLower(cfg.PseudonymizationMethod)),
	}
}

func (d Defaults) language(requested string) string {
	if requested != "" {
		return requested
	}
	if d.Language != "" {
		return d.Language
	}
	return domain.LanguageEnglish
}

// minScore rejects thresholds outside [0, 1] before any engine call.
func (d Defaults) minScore(requested *float64) (float64, error) {
	if requested == nil {
		return d.MinScore, nil
	}
	if *requested < 0 || *requested > 1 || math.IsNaN(*requested) {
		return 0, domain.NewInvalidInputError(fmt.Sprintf("min_score must be between 0 and 1, got %g", *requested))
	}
	return *requested, nil
}

// entityTypes treats nil as "use the default" and an explicit empty list as
// "every supported type".
func (d Defaults) entityTypes(requested []string) []string {
	if requested != nil {
		return requested
	}
	return d.EntityTypes
}

// Meta is the effective configuration a call ran with.
type Meta struct {
	Language string
	MinScore float64
	Operator domain.Operator
	Method   domain.MethodID
}

// base is shared by every service.
type base struct {
	validator Validator
	defaults  Defaults
	observer  Observer
	logger    *logger.Logger
}

func newBase(validator Validator, defaults Defaults, observer Observer, log *logger.Logger, component string) base {
	if log == nil {
		log = logger.Nop()
	}
	return base{
		validator: validator,
		defaults:  defaults,
		observer:  observer,
		logger:    log.WithComponent(component),
	}
}

// resolveEntityTypes applies the default allowlist and validates it.
func (b base) resolveEntityTypes(ctx context.Context, language string, requested []string) ([]string, error) {
	return b.validator.Validate(ctx, language, b.defaults.entityTypes(requested))
}

func (b base) emit(ctx context.Context, op Operation, scope domain.Scope, stats domain.Stats, started time.Time) {
	if b.observer == nil {
		return
	}
	b.observer.Observe(ctx, Event{
		RequestID:    logger.RequestIDFromContext(ctx),
		Operation:    op,
		Scope:        scope,
		EntityCounts: stats,
		Duration:     time.Since(started),
		Timestamp:    time.Now(),
	})
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

func isEmptyData(data domain.StructuredData) bool {
	return data == nil || data.IsEmpty()
}

// analysisFailure wraps an engine error unless the caller caused it.
func analysisFailure(msg string, err error) error {
	if passThrough(err) {
		return err
	}
	return domain.NewAnalysisError(msg, err)
}

// passThrough reports errors that reach the caller unwrapped.
func passThrough(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput, domain.KindEntityTypeValidation, domain.KindUnsupportedDataType:
		return true
	default:
		return false
	}
}
