package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/enrichment"
	"github.com/raaihank/deidentifier/internal/logger"
	"github.com/raaihank/deidentifier/internal/pseudonym"
)

// EnricherSource resolves the enricher of an entity type; nil means none.
type EnricherSource interface {
	EnricherFor(entityType string) (enrichment.Enricher, error)
}

// OperatorContext is everything the pseudonymize operator needs for one call.
type OperatorContext struct {
	Method          pseudonym.Method
	Enrichers       EnricherSource
	EnrichableTypes map[string]bool
}

// NewOperatorContext builds a context enriching only enrichableTypes.
func NewOperatorContext(method pseudonym.Method, enrichers EnricherSource, enrichableTypes []string) OperatorContext {
	types := make(map[string]bool, len(enrichableTypes))
	for _, t := range enrichableTypes {
		types[t] = true
	}
	return OperatorContext{Method: method, Enrichers: enrichers, EnrichableTypes: types}
}

// PseudonymizeOperator replaces an entity with its pseudonym, suffixed with
// " (enrichment)" when an enricher for the type returns a value.
type PseudonymizeOperator struct {
	opCtx  OperatorContext
	logger *logger.Logger
}

func NewPseudonymizeOperator(opCtx OperatorContext, log *logger.Logger) *PseudonymizeOperator {
	if log == nil {
		log = logger.Nop()
	}
	return &PseudonymizeOperator{opCtx: opCtx, logger: log.WithComponent("pseudonymize_operator")}
}

func (o *PseudonymizeOperator) Name() domain.Operator { return domain.OperatorPseudonymize }

func (o *PseudonymizeOperator) Operate(ctx context.Context, entity domain.Entity) (string, error) {
	if o.opCtx.Method == nil {
		return "", domain.NewConfigurationError("pseudonymize operator requires a method", nil)
	}
	pseudonymValue := o.opCtx.Method.Generate(entity)

	enrichmentValue, err := o.enrichment(ctx, entity)
	if err != nil {
		return "", err
	}
	if enrichmentValue != "" {
		return pseudonymValue + " (" + enrichmentValue + ")", nil
	}
	return pseudonymValue, nil
}

// enrichment swallows enrichment failures; only configuration errors escape.
func (o *PseudonymizeOperator) enrichment(ctx context.Context, entity domain.Entity) (string, error) {
	if o.opCtx.Enrichers == nil || !o.opCtx.EnrichableTypes[entity.Type] {
		return "", nil
	}

	enricher, err := o.opCtx.Enrichers.EnricherFor(entity.Type)
	if err != nil {
		return "", err
	}
	if enricher == nil {
		return "", nil
	}

	value, err := enricher.Enrich(ctx, entity)
	if err != nil {
		if errors.Is(err, domain.ErrEnrichment) {
			o.logger.Warn("Pseudonym enrichment failed, continuing without it",
				zap.String("entity_type", entity.Type),
				zap.Error(err))
			return "", nil
		}
		return "", err
	}
	return value, nil
}
