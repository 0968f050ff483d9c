// Package presidio talks to a presidio-analyzer deployment over its REST API.
package presidio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/httpx"
	"github.com/raaihank/deidentifier/internal/logger"
)

// Client communicates with the Presidio analyzer over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
	http    Doer
	logger  *logger.Logger
}

// Doer performs one raw call, see httpx.Client.
type Doer interface {
	Do(ctx context.Context, req httpx.Request) ([]byte, error)
}

type AnalyzeRequest struct {
	Text           string   `json:"text"`
	Language       string   `json:"language"`
	ScoreThreshold float64  `json:"score_threshold"`
	Entities       []string `json:"entities,omitempty"`
}

// RecognizerResult is one span as returned by /analyze. Offsets count
// characters, not bytes.
type RecognizerResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

func NewClient(baseURL string, timeout time.Duration, doer Doer, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    doer,
		logger:  log.WithComponent("presidio"),
	}
}

// Analyze returns the detected entities with byte offsets into text.
func (c *Client) Analyze(ctx context.Context, text string, opts domain.AnalysisOptions) ([]domain.Entity, error) {
	reqBody := AnalyzeRequest{
		Text:           text,
		Language:       opts.Language,
		ScoreThreshold: opts.MinScore,
		Entities:       opts.EntityTypes,
	}

	// httpx sends map data as the JSON body
	data, err := toMap(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	body, err := c.http.Do(ctx, httpx.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/analyze",
		Data:    data,
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("presidio request: %w", err)
	}

	var results []RecognizerResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	offsets := runeToByteOffsets(text)
	entities := make([]domain.Entity, 0, len(results))
	for _, r := range results {
		if r.Start < 0 || r.End < r.Start || r.End >= len(offsets) {
			c.logger.Warn("Dropping out of range presidio result",
				zap.String("entity_type", r.EntityType), zap.Int("start", r.Start), zap.Int("end", r.End))
			continue
		}
		start, end := offsets[r.Start], offsets[r.End]
		entities = append(entities, domain.Entity{
			Type:  r.EntityType,
			Start: start,
			End:   end,
			Score: r.Score,
			Text:  text[start:end],
		})
	}
	return entities, nil
}

// SupportedEntities queries /supportedentities for language.
func (c *Client) SupportedEntities(ctx context.Context, language string) ([]string, error) {
	body, err := c.http.Do(ctx, httpx.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + "/supportedentities?language=" + url.QueryEscape(language),
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("presidio request: %w", err)
	}

	var entities []string
	if err := json.Unmarshal(body, &entities); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return entities, nil
}

// Health checks that the analyzer answers.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.http.Do(ctx, httpx.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + "/health",
		Timeout: c.timeout,
	})
	return err
}

// runeToByteOffsets maps every character index, plus the end position, to
// its byte offset.
func runeToByteOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	err = json.Unmarshal(raw, &m)
	return m, err
}
