package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/engine"
	"github.com/raaihank/deidentifier/internal/logger"
)

// AnonymizeTextRequest rewrites detected entities with an operator.
type AnonymizeTextRequest struct {
	Text           string
	Operator       string
	OperatorParams map[string]any
	Language       string
	MinScore       *float64
	EntityTypes    []string
}

// TextAnonymizationService anonymizes free text.
type TextAnonymizationService struct {
	base
	analyzer engine.Analyzer
}

func NewTextAnonymizationService(analyzer engine.Analyzer, validator Validator, defaults Defaults, observer Observer, log *logger.Logger) *TextAnonymizationService {
	return &TextAnonymizationService{
		base:     newBase(validator, defaults, observer, log, "text_anonymization_service"),
		analyzer: analyzer,
	}
}

func (s *TextAnonymizationService) Anonymize(ctx context.Context, req AnonymizeTextRequest) (*domain.TextResult, Meta, error) {
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
	op, err := buildOperator(s.defaults, req.Operator, req.OperatorParams)
	if err != nil {
		return nil, meta, domain.NewAnonymizationError(domain.ScopeText, "Anonymization operator loading failed", err)
	}
	meta.Operator = op.Name()

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
		s.emit(ctx, OperationAnonymize, domain.ScopeText, domain.Stats{}, started)
		return domain.NewTextResult(req.Text, nil), meta, nil
	}

	rewritten, err := engine.RewriteText(ctx, req.Text, entities, op)
	if err != nil {
		return nil, meta, s.wrap(err)
	}
	result := domain.NewTextResult(rewritten, entities)

	s.logger.Info("Text anonymized",
		zap.String("operator", string(meta.Operator)),
		zap.Int("text_length", len(req.Text)),
		zap.Int("entities_count", len(entities)))
	s.emit(ctx, OperationAnonymize, domain.ScopeText, result.Stats, started)
	return result, meta, nil
}

func (s *TextAnonymizationService) wrap(err error) error {
	if passThrough(err) {
		return err
	}
	s.logger.Error("Text anonymization failed", zap.Error(err))
	return domain.NewAnonymizationError(domain.ScopeText, "Text anonymization failed", err)
}

// AnonymizeStructuredRequest rewrites detected fields with an operator.
type AnonymizeStructuredRequest struct {
	Data           domain.StructuredData
	Operator       string
	OperatorParams map[string]any
	Language       string
	EntityTypes    []string
}

// StructuredAnonymizationService anonymizes JSON documents and frames.
type StructuredAnonymizationService struct {
	base
	engine *engine.StructuredEngine
}

func NewStructuredAnonymizationService(structured *engine.StructuredEngine, validator Validator, defaults Defaults, observer Observer, log *logger.Logger) *StructuredAnonymizationService {
	return &StructuredAnonymizationService{
		base:   newBase(validator, defaults, observer, log, "structured_anonymization_service"),
		engine: structured,
	}
}

func (s *StructuredAnonymizationService) Anonymize(ctx context.Context, req AnonymizeStructuredRequest) (*domain.StructuredResult, Meta, error) {
	started := time.Now()
	if isEmptyData(req.Data) {
		return nil, Meta{}, domain.NewInvalidInputError("Data cannot be empty")
	}

	meta := Meta{Language: s.defaults.language(req.Language), MinScore: s.defaults.MinScore}
	op, err := buildOperator(s.defaults, req.Operator, req.OperatorParams)
	if err != nil {
		return nil, meta, domain.NewAnonymizationError(domain.ScopeStructured, "Anonymization operator loading failed", err)
	}
	meta.Operator = op.Name()

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
		s.emit(ctx, OperationAnonymize, domain.ScopeStructured, domain.Stats{}, started)
		return domain.NewStructuredResult(req.Data, nil), meta, nil
	}

	rewritten, err := s.engine.Rewrite(ctx, req.Data.Clone(), fields, op)
	if err != nil {
		return nil, meta, s.wrap(err)
	}
	result := domain.NewStructuredResult(rewritten, fields)

	s.logger.Info("Structured data anonymized",
		zap.String("operator", string(meta.Operator)),
		zap.String("kind", string(req.Data.Kind())),
		zap.Int("fields_count", len(fields)))
	s.emit(ctx, OperationAnonymize, domain.ScopeStructured, result.Stats, started)
	return result, meta, nil
}

func (s *StructuredAnonymizationService) wrap(err error) error {
	if passThrough(err) {
		return err
	}
	s.logger.Error("Structured data anonymization failed", zap.Error(err))
	return domain.NewAnonymizationError(domain.ScopeStructured, "Structured data anonymization failed", err)
}

// buildOperator resolves the requested or default operator name.
func buildOperator(defaults Defaults, name string, params map[string]any) (engine.Operator, error) {
	if name == "" {
		name = string(defaults.AnonymizationOperator)
	}
	op, err := domain.ParseOperator(name)
	if err != nil {
		return nil, err
	}
	return engine.NewOperator(op, params)
}
