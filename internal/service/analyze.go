package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/engine"
	"github.com/raaihank/deidentifier/internal/logger"
)

// AnalyzeRequest asks for detection only. Nil fields take the defaults.
type AnalyzeRequest struct {
	Text        string
	Language    string
	MinScore    *float64
	EntityTypes []string
}

// AnalyzeService detects PII in text without rewriting it.
type AnalyzeService struct {
	base
	analyzer engine.Analyzer
}

func NewAnalyzeService(analyzer engine.Analyzer, validator Validator, defaults Defaults, observer Observer, log *logger.Logger) *AnalyzeService {
	return &AnalyzeService{
		base:     newBase(validator, defaults, observer, log, "analyze_service"),
		analyzer: analyzer,
	}
}

func (s *AnalyzeService) AnalyzeText(ctx context.Context, req AnalyzeRequest) (*domain.AnalysisResult, error) {
	started := time.Now()
	if isBlank(req.Text) {
		return nil, domain.NewInvalidInputError("Text cannot be empty")
	}

	language := s.defaults.language(req.Language)
	minScore, err := s.defaults.minScore(req.MinScore)
	if err != nil {
		return nil, err
	}
	entityTypes, err := s.resolveEntityTypes(ctx, language, req.EntityTypes)
	if err != nil {
		return nil, err
	}

	entities, err := s.analyzer.Analyze(ctx, req.Text, domain.AnalysisOptions{
		Language:    language,
		MinScore:    minScore,
		EntityTypes: entityTypes,
	})
	if err != nil {
		if passThrough(err) {
			return nil, err
		}
		s.logger.Error("Text analysis failed", zap.Error(err), zap.Int("text_length", len(req.Text)))
		return nil, domain.NewAnalysisError("Text analysis failed", err)
	}
	if entities == nil {
		entities = []domain.Entity{}
	}

	result := &domain.AnalysisResult{
		Entities: entities,
		Language: language,
		MinScore: minScore,
		Stats:    domain.CountEntities(entities),
	}

	s.logger.Info("Text analyzed",
		zap.Int("text_length", len(req.Text)),
		zap.Int("entities_count", len(entities)),
		zap.String("language", language))
	s.emit(ctx, OperationAnalyze, domain.ScopeText, result.Stats, started)
	return result, nil
}
