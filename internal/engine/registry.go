// Package engine hosts the detection and rewrite machinery shared by every
// de-identification service: the process-wide analyzer, the anonymization
// operators and the text and structured-data rewriters.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/httpx"
	"github.com/raaihank/deidentifier/internal/logger"
	"github.com/raaihank/deidentifier/internal/presidio"
	"github.com/raaihank/deidentifier/internal/privacy"
)

// Analyzer detects PII spans in free text.
type Analyzer interface {
	Analyze(ctx context.Context, text string, opts domain.AnalysisOptions) ([]domain.Entity, error)
	SupportedEntities(ctx context.Context, language string) ([]string, error)
}

// Factory builds the analyzer on first use.
type Factory func() (Analyzer, error)

type analyzerHolder struct {
	analyzer Analyzer
}

// Registry owns the process-wide analyzer. Construction is deferred to the
// first call and happens at most once, even under concurrent first requests.
// A failed construction is retried on the next call.
type Registry struct {
	mu       sync.Mutex
	current  atomic.Pointer[analyzerHolder]
	factory  Factory
	logger   *logger.Logger
	attempts atomic.Int32
}

func NewRegistry(factory Factory, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{factory: factory, logger: log.WithComponent("engine")}
}

// Analyzer returns the shared analyzer, building it if needed.
func (r *Registry) Analyzer() (Analyzer, error) {
	if h := r.current.Load(); h != nil {
		return h.analyzer, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h := r.current.Load(); h != nil {
		return h.analyzer, nil
	}

	r.attempts.Add(1)
	analyzer, err := r.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analyzer: %w", err)
	}
	r.current.Store(&analyzerHolder{analyzer: analyzer})
	r.logger.Info("Analyzer engine initialized", zap.String("engine", fmt.Sprintf("%T", analyzer)))
	return analyzer, nil
}

// Analyze implements Analyzer on top of the lazily built engine.
func (r *Registry) Analyze(ctx context.Context, text string, opts domain.AnalysisOptions) ([]domain.Entity, error) {
	analyzer, err := r.Analyzer()
	if err != nil {
		return nil, err
	}
	return analyzer.Analyze(ctx, text, opts)
}

func (r *Registry) SupportedEntities(ctx context.Context, language string) ([]string, error) {
	analyzer, err := r.Analyzer()
	if err != nil {
		return nil, err
	}
	return analyzer.SupportedEntities(ctx, language)
}

// NewFactory selects the engine named by cfg.Type.
func NewFactory(cfg config.EngineConfig, client *httpx.Client, log *logger.Logger) Factory {
	return func() (Analyzer, error) {
		switch cfg.Type {
		case "", "builtin":
			return privacy.New(cfg.Builtin, log)
		case "presidio":
			return presidio.NewClient(cfg.Presidio.AnalyzerURL, cfg.Presidio.Timeout, client, log), nil
		default:
			return nil, domain.NewConfigurationError("unknown engine type: "+cfg.Type, nil)
		}
	}
}
