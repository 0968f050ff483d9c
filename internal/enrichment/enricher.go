// Package enrichment attaches contextual information to pseudonyms by asking
// a per entity type remote service, e.g. the country of a LOCATION.
package enrichment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/httpx"
	"github.com/raaihank/deidentifier/internal/logger"
)

const (
	DefaultTimeout = 10 // seconds
	MinTimeout     = 1
	MaxTimeout     = 300
	DefaultKey     = "text"
)

// Enricher returns the enrichment of an entity. An empty string with a nil
// error means the service had nothing to add. Failures are *domain.Error
// values of kind enrichment.
type Enricher interface {
	Enrich(ctx context.Context, entity domain.Entity) (string, error)
}

// Doer performs one JSON call, see httpx.Client.
type Doer interface {
	DoJSON(ctx context.Context, req httpx.Request) (map[string]any, error)
}

// HTTPEnricher sends the entity text to a remote service and reads the
// enrichment back from its JSON response.
type HTTPEnricher struct {
	url         string
	method      string
	timeout     time.Duration
	requestKey  string
	responseKey string
	client      Doer
	logger      *logger.Logger
}

// NewHTTPEnricher applies defaults: POST, "text" for both keys and a timeout
// of 10s clamped to [1s, 300s].
func NewHTTPEnricher(cfg config.EnrichmentEntityConfig, client Doer, log *logger.Logger) *HTTPEnricher {
	if log == nil {
		log = logger.Nop()
	}
	method := strings.ToUpper(strings.TrimSpace(cfg.HTTPMethod))
	if method == "" {
		method = http.MethodPost
	}
	return &HTTPEnricher{
		url:         cfg.URL,
		method:      method,
		timeout:     time.Duration(clampTimeout(cfg.Timeout)) * time.Second,
		requestKey:  orDefault(cfg.RequestKey, DefaultKey),
		responseKey: orDefault(cfg.ResponseKey, DefaultKey),
		client:      client,
		logger:      log.WithComponent("enrichment"),
	}
}

func clampTimeout(seconds int) int {
	if seconds == 0 {
		seconds = DefaultTimeout
	}
	return max(MinTimeout, min(seconds, MaxTimeout))
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func (e *HTTPEnricher) Enrich(ctx context.Context, entity domain.Entity) (string, error) {
	if e.url == "" {
		return "", nil
	}

	e.logger.Debug("Starting pseudonym enrichment via HTTP", zap.String("entity_type", entity.Type))

	resp, err := e.client.DoJSON(ctx, httpx.Request{
		Method:  e.method,
		URL:     e.url,
		Data:    map[string]any{e.requestKey: entity.Text},
		Timeout: e.timeout,
	})
	if err != nil {
		var he *httpx.Error
		if !errors.As(err, &he) {
			e.logger.Warn("Pseudonym enrichment processing failed",
				zap.String("entity_type", entity.Type), zap.Error(err))
		}
		return "", domain.NewEnrichmentError("enrichment request failed for "+entity.Type, err)
	}

	enrichment, ok := resp[e.responseKey].(string)
	if !ok || strings.TrimSpace(enrichment) == "" {
		e.logger.Debug("No enrichment returned by service", zap.String("entity_type", entity.Type))
		return "", nil
	}
	return enrichment, nil
}
