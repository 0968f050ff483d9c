package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/engine"
	"github.com/raaihank/deidentifier/internal/enrichment"
	"github.com/raaihank/deidentifier/internal/logger"
	"github.com/raaihank/deidentifier/internal/pseudonym"
)

// PseudonymizeTextRequest replaces detected entities with pseudonyms.
type PseudonymizeTextRequest struct {
	Text         string
	Method       string
	MethodParams map[string]any
	Language     string
	MinScore     *float64
	EntityTypes  []string
}

// TextPseudonymizationService pseudonymizes free text, optionally enriching
// pseudonyms of configured entity types.
type TextPseudonymizationService struct {
	base
	analyzer   engine.Analyzer
	enrichment *enrichment.Manager
}

// NewTextPseudonymizationService builds the service. manager may be nil to
// disable enrichment.
func NewTextPseudonymizationService(analyzer engine.Analyzer, validator Validator, defaults Defaults, manager *enrichment.Manager, observer Observer, log *logger.Logger) *TextPseudonymizationService {
	return &TextPseudonymizationService{
		base:       newBase(validator, defaults, observer, log, "text_pseudonymization_service"),
		analyzer:   analyzer,
		enrichment: manager,
	}
}

func (s *TextPseudonymizationService) Pseudonymize(ctx context.Context, req PseudonymizeTextRequest) (*domain.TextResult, Meta, error) {
	started := time.Now()
	if isBlank(req.Text) {
		return nil, Meta{}, domain.NewInvalidInputError("Text cannot be empty")
	}

	minScore, err := s.defaults.minScore(req.MinScore)
	if err != nil {
		return nil, Meta{}, err
	}
	meta := Meta{
		Language: s.defaults.language(req.Language),
		MinScore: minScore,
	}
	method, err := buildMethod(s.defaults, req.Method, req.MethodParams)
	if err != nil {
		return nil, meta, domain.NewPseudonymizationError(domain.ScopeText, "Pseudonymization method loading failed", err)
	}
	meta.Method = method.ID()

	entityTypes, err := s.resolveEntityTypes(ctx, meta.Language, req.EntityTypes)
	if err != nil {
		return nil, meta, s.wrap(err)
	}

	entities, err := s.analyzer.Analyze(ctx, req.Text, domain.AnalysisOptions{
		Language:    meta.Language,
		MinScore:    meta.MinScore,
		EntityTypes: entityTypes,
	})
	if err != nil {
		return nil, meta, s.wrap(analysisFailure("Text analysis failed", err))
	}
	if len(entities) == 0 {
		s.emit(ctx, OperationPseudonymize, domain.ScopeText, domain.Stats{}, started)
		return domain.NewTextResult(req.Text, nil), meta, nil
	}

	op := engine.NewPseudonymizeOperator(operatorContext(method, s.enrichment), s.logger)
	rewritten, err := engine.RewriteText(ctx, req.Text, entities, op)
	if err != nil {
		return nil, meta, s.wrap(err)
	}
	result := domain.NewTextResult(rewritten, entities)

	s.logger.Info("Text pseudonymized",
		zap.String("method", string(meta.Method)),
		zap.Int("text_length", len(req.Text)),
		zap.Int("entities_count", len(entities)))
	s.emit(ctx, OperationPseudonymize, domain.ScopeText, result.Stats, started)
	return result, meta, nil
}

func (s *TextPseudonymizationService) wrap(err error) error {
	if passThrough(err) {
		return err
	}
	s.logger.Error("Text pseudonymization failed", zap.Error(err))
	return domain.NewPseudonymizationError(domain.ScopeText, "Text pseudonymization failed", err)
}

// PseudonymizeStructuredRequest replaces detected fields with pseudonyms.
type PseudonymizeStructuredRequest struct {
	Data         domain.StructuredData
	Method       string
	MethodParams map[string]any
	Language     string
	EntityTypes  []string
}

// StructuredPseudonymizationService pseudonymizes JSON documents and frames.
type StructuredPseudonymizationService struct {
	base
	engine     *engine.StructuredEngine
	enrichment *enrichment.Manager
}

func NewStructuredPseudonymizationService(structured *engine.StructuredEngine, validator Validator, defaults Defaults, manager *enrichment.Manager, observer Observer, log *logger.Logger) *StructuredPseudonymizationService {
	return &StructuredPseudonymizationService{
		base:       newBase(validator, defaults, observer, log, "structured_pseudonymization_service"),
		engine:     structured,
		enrichment: manager,
	}
}

func (s *StructuredPseudonymizationService) Pseudonymize(ctx context.Context, req PseudonymizeStructuredRequest) (*domain.StructuredResult, Meta, error) {
	started := time.Now()
	if isEmptyData(req.Data) {
		return nil, Meta{}, domain.NewInvalidInputError("Data cannot be empty")
	}

	meta := Meta{Language: s.defaults.language(req.Language), MinScore: s.defaults.MinScore}
	method, err := buildMethod(s.defaults, req.Method, req.MethodParams)
	if err != nil {
		return nil, meta, domain.NewPseudonymizationError(domain.ScopeStructured, "Pseudonymization method loading failed", err)
	}
	meta.Method = method.ID()

	entityTypes, err := s.resolveEntityTypes(ctx, meta.Language, req.EntityTypes)
	if err != nil {
		return nil, meta, s.wrap(err)
	}

	fields, err := s.engine.Analyze(ctx, req.Data, domain.AnalysisOptions{
		Language:    meta.Language,
		MinScore:    meta.MinScore,
		EntityTypes: entityTypes,
	})
	if err != nil {
		if passThrough(err) {
			return nil, meta, err
		}
		return nil, meta, s.wrap(domain.NewAnalysisError("Structured data analysis failed", err))
	}
	if len(fields) == 0 {
		s.emit(ctx, OperationPseudonymize, domain.ScopeStructured, domain.Stats{}, started)
		return domain.NewStructuredResult(req.Data, nil), meta, nil
	}

	op := engine.NewPseudonymizeOperator(operatorContext(method, s.enrichment), s.logger)
	rewritten, err := s.engine.Rewrite(ctx, req.Data.Clone(), fields, op)
	if err != nil {
		return nil, meta, s.wrap(err)
	}
	result := domain.NewStructuredResult(rewritten, fields)

	s.logger.Info("Structured data pseudonymized",
		zap.String("method", string(meta.Method)),
		zap.String("kind", string(req.Data.Kind())),
		zap.Int("fields_count", len(fields)))
	s.emit(ctx, OperationPseudonymize, domain.ScopeStructured, result.Stats, started)
	return result, meta, nil
}

func (s *StructuredPseudonymizationService) wrap(err error) error {
	if passThrough(err) {
		return err
	}
	s.logger.Error("Structured data pseudonymization failed", zap.Error(err))
	return domain.NewPseudonymizationError(domain.ScopeStructured, "Structured data pseudonymization failed", err)
}

// buildMethod creates a fresh method instance for one call.
func buildMethod(defaults Defaults, name string, params map[string]any) (pseudonym.Method, error) {
	if name == "" {
		name = string(defaults.PseudonymizationMethod)
	}
	id, err := domain.ParseMethod(name)
	if err != nil {
		return nil, err
	}
	return pseudonym.New(id, params)
}

// operatorContext enables enrichment only while the manager is switched on.
func operatorContext(method pseudonym.Method, manager *enrichment.Manager) engine.OperatorContext {
	if manager == nil || !manager.Enabled() {
		return engine.NewOperatorContext(method, nil, nil)
	}
	return engine.NewOperatorContext(method, manager, manager.EnrichableTypes())
}
