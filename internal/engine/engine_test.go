package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/enrichment"
	"github.com/raaihank/deidentifier/internal/pseudonym"
)

// wordAnalyzer tags fixed words with fixed types.
type wordAnalyzer struct {
	words map[string]domain.Entity
	err   error
}

func (a *wordAnalyzer) Analyze(_ context.Context, text string, opts domain.AnalysisOptions) ([]domain.Entity, error) {
	if a.err != nil {
		return nil, a.err
	}
	var out []domain.Entity
	for word, tmpl := range a.words {
		offset := 0
		for {
			i := strings.Index(text[offset:], word)
			if i < 0 {
				break
			}
			start := offset + i
			if opts.Allows(tmpl.Type) && tmpl.Score >= opts.MinScore {
				out = append(out, domain.Entity{Type: tmpl.Type, Start: start, End: start + len(word), Score: tmpl.Score, Text: word})
			}
			offset = start + len(word)
		}
	}
	return out, nil
}

func (a *wordAnalyzer) SupportedEntities(context.Context, string) ([]string, error) {
	return []string{"LOCATION", "PERSON"}, nil
}

func johnLondon() []domain.Entity {
	return []domain.Entity{
		{Type: "PERSON", Start: 0, End: 4, Score: 0.85, Text: "John"},
		{Type: "LOCATION", Start: 14, End: 20, Score: 0.85, Text: "London"},
	}
}

func TestNewOperator(t *testing.T) {
	ctx := context.Background()
	john := johnLondon()[0]

	tests := []struct {
		name   string
		op     domain.Operator
		params Params
		want   string
	}{
		{name: "replace default", op: domain.OperatorReplace, want: "<PERSON>"},
		{name: "replace value", op: domain.OperatorReplace, params: Params{"new_value": "ANON"}, want: "ANON"},
		{name: "redact", op: domain.OperatorRedact, want: ""},
		{name: "mask all", op: domain.OperatorMask, want: "****"},
		{name: "mask prefix", op: domain.OperatorMask, params: Params{"masking_char": "#", "chars_to_mask": float64(2)}, want: "##hn"},
		{name: "mask suffix", op: domain.OperatorMask, params: Params{"chars_to_mask": 3, "from_end": true}, want: "J***"},
		{name: "hash", op: domain.OperatorHash, want: "a8cfcd74832004951b4408cdb0a5dbcd8c7e52d43f7fe244bf720582e05241da"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := NewOperator(tt.op, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.op, op.Name())

			got, err := op.Operate(ctx, john)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewOperatorErrors(t *testing.T) {
	tests := []struct {
		name   string
		op     domain.Operator
		params Params
	}{
		{name: "unknown", op: domain.Operator("shred")},
		{name: "unknown param", op: domain.OperatorReplace, params: Params{"colour": "red"}},
		{name: "mask char", op: domain.OperatorMask, params: Params{"masking_char": "ab"}},
		{name: "hash type", op: domain.OperatorHash, params: Params{"hash_type": "md5"}},
		{name: "encrypt key", op: domain.OperatorEncrypt, params: Params{"key": "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOperator(tt.op, tt.params)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestEncryptRoundTrip(t *testing.T) {
	key := "0123456789abcdef"
	op, err := NewOperator(domain.OperatorEncrypt, Params{"key": key})
	require.NoError(t, err)

	token, err := op.Operate(context.Background(), domain.Entity{Type: "PERSON", Text: "John Smith"})
	require.NoError(t, err)
	assert.NotContains(t, token, "John")

	plain, err := Decrypt(key, token)
	require.NoError(t, err)
	assert.Equal(t, "John Smith", plain)

	_, err = Decrypt("fedcba9876543210", token)
	assert.Error(t, err)
}

func TestResolveOverlaps(t *testing.T) {
	entities := []domain.Entity{
		{Type: "URL", Start: 10, End: 30, Score: 0.6},
		{Type: "EMAIL_ADDRESS", Start: 12, End: 25, Score: 1.0},
		{Type: "PERSON", Start: 0, End: 4, Score: 0.85},
		{Type: "LOCATION", Start: 0, End: 4, Score: 0.85},
		{Type: "DATE_TIME", Start: 40, End: 50, Score: 0.6},
	}

	got := ResolveOverlaps(entities)
	require.Len(t, got, 3)
	assert.Equal(t, "PERSON", got[0].Type, "equal score keeps the first")
	assert.Equal(t, "EMAIL_ADDRESS", got[1].Type, "higher score wins")
	assert.Equal(t, "DATE_TIME", got[2].Type)
	assert.Len(t, entities, 5, "input untouched")
}

func TestRewriteText(t *testing.T) {
	op, err := NewOperator(domain.OperatorReplace, nil)
	require.NoError(t, err)

	out, err := RewriteText(context.Background(), "John lives in London", johnLondon(), op)
	require.NoError(t, err)
	assert.Equal(t, "<PERSON> lives in <LOCATION>", out)

	out, err = RewriteText(context.Background(), "nothing here", nil, op)
	require.NoError(t, err)
	assert.Equal(t, "nothing here", out)
}

type stubEnricher struct {
	value string
	err   error
	calls atomic.Int32
}

func (s *stubEnricher) Enrich(context.Context, domain.Entity) (string, error) {
	s.calls.Add(1)
	return s.value, s.err
}

type stubSource map[string]enrichment.Enricher

func (s stubSource) EnricherFor(entityType string) (enrichment.Enricher, error) {
	e, ok := s[entityType]
	if !ok {
		return nil, nil
	}
	return e, nil
}

func TestPseudonymizeOperator(t *testing.T) {
	text := "John lives in London"

	t.Run("counter without enrichment", func(t *testing.T) {
		method, err := pseudonym.New(domain.MethodCounter, nil)
		require.NoError(t, err)
		op := NewPseudonymizeOperator(NewOperatorContext(method, nil, nil), nil)

		out, err := RewriteText(context.Background(), text, johnLondon(), op)
		require.NoError(t, err)
		assert.Equal(t, "<PERSON_1> lives in <LOCATION_1>", out)
	})

	t.Run("with location enrichment", func(t *testing.T) {
		method, err := pseudonym.New(domain.MethodCounter, pseudonym.Params{"start_number": 1})
		require.NoError(t, err)
		enricher := &stubEnricher{value: "United Kingdom"}
		opCtx := NewOperatorContext(method, stubSource{"LOCATION": enricher}, []string{"LOCATION"})

		out, err := RewriteText(context.Background(), text, johnLondon(), NewPseudonymizeOperator(opCtx, nil))
		require.NoError(t, err)
		assert.Equal(t, "<PERSON_1> lives in <LOCATION_1> (United Kingdom)", out)
		assert.Equal(t, int32(1), enricher.calls.Load())
	})

	t.Run("type not enrichable", func(t *testing.T) {
		method, _ := pseudonym.New(domain.MethodCounter, nil)
		enricher := &stubEnricher{value: "United Kingdom"}
		opCtx := NewOperatorContext(method, stubSource{"LOCATION": enricher}, []string{"PERSON"})

		out, err := RewriteText(context.Background(), text, johnLondon(), NewPseudonymizeOperator(opCtx, nil))
		require.NoError(t, err)
		assert.Equal(t, "<PERSON_1> lives in <LOCATION_1>", out)
		assert.Zero(t, enricher.calls.Load())
	})

	t.Run("enrichment failure is absorbed", func(t *testing.T) {
		method, _ := pseudonym.New(domain.MethodCounter, nil)
		enricher := &stubEnricher{err: domain.NewEnrichmentError("down", errors.New("connection refused"))}
		opCtx := NewOperatorContext(method, stubSource{"LOCATION": enricher}, []string{"LOCATION"})

		out, err := RewriteText(context.Background(), text, johnLondon(), NewPseudonymizeOperator(opCtx, nil))
		require.NoError(t, err)
		assert.Equal(t, "<PERSON_1> lives in <LOCATION_1>", out)
	})

	t.Run("repeated entity reuses pseudonym", func(t *testing.T) {
		method, _ := pseudonym.New(domain.MethodCounter, nil)
		op := NewPseudonymizeOperator(NewOperatorContext(method, nil, nil), nil)
		entities := []domain.Entity{
			{Type: "PERSON", Start: 0, End: 4, Score: 1},
			{Type: "PERSON", Start: 9, End: 13, Score: 1},
			{Type: "PERSON", Start: 18, End: 22, Score: 1},
		}

		out, err := RewriteText(context.Background(), "John and Jane and John", entities, op)
		require.NoError(t, err)
		assert.Equal(t, "<PERSON_1> and <PERSON_2> and <PERSON_1>", out)
	})

	t.Run("missing method", func(t *testing.T) {
		op := NewPseudonymizeOperator(OperatorContext{}, nil)
		_, err := op.Operate(context.Background(), johnLondon()[0])
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func TestRegistryBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	registry := NewRegistry(func() (Analyzer, error) {
		builds.Add(1)
		return &wordAnalyzer{}, nil
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.Analyzer()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), builds.Load())
}

func TestRegistryRetriesFailedBuild(t *testing.T) {
	fail := true
	registry := NewRegistry(func() (Analyzer, error) {
		if fail {
			return nil, errors.New("model not loaded")
		}
		return &wordAnalyzer{}, nil
	}, nil)

	_, err := registry.Analyze(context.Background(), "x", domain.AnalysisOptions{})
	require.Error(t, err)

	fail = false
	_, err = registry.Analyze(context.Background(), "x", domain.AnalysisOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), registry.attempts.Load())
}

func TestNewFactory(t *testing.T) {
	analyzer, err := NewFactory(config.EngineConfig{Type: "builtin"}, nil, nil)()
	require.NoError(t, err)
	supported, err := analyzer.SupportedEntities(context.Background(), "en")
	require.NoError(t, err)
	assert.Contains(t, supported, "PERSON")

	_, err = NewFactory(config.EngineConfig{Type: "spacy"}, nil, nil)()
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func structuredAnalyzer() *wordAnalyzer {
	return &wordAnalyzer{words: map[string]domain.Entity{
		"John":    {Type: "PERSON", Score: 0.85},
		"London":  {Type: "LOCATION", Score: 0.85},
		"@":       {Type: "EMAIL_ADDRESS", Score: 1.0},
		"Someday": {Type: "DATE_TIME", Score: 0.3},
	}}
}

func TestStructuredEngine_AnalyzeDocument(t *testing.T) {
	e := NewStructuredEngine(structuredAnalyzer(), nil)
	doc := domain.JSONDocument{
		"name": "John",
		"contact": map[string]any{
			"email": "john@example.com",
			"city":  "London",
		},
		"aliases": []any{"Johnny", "John"},
		"age":     float64(40),
		"note":    "Someday",
	}

	fields, err := e.Analyze(context.Background(), doc, domain.AnalysisOptions{Language: "en", MinScore: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []domain.DetectedField{
		{FieldName: "aliases", EntityType: "PERSON"},
		{FieldName: "contact.city", EntityType: "LOCATION"},
		{FieldName: "contact.email", EntityType: "EMAIL_ADDRESS"},
		{FieldName: "name", EntityType: "PERSON"},
	}, fields)

	fields, err = e.Analyze(context.Background(), doc, domain.AnalysisOptions{MinScore: 0.5, EntityTypes: []string{"LOCATION"}})
	require.NoError(t, err)
	assert.Equal(t, []domain.DetectedField{{FieldName: "contact.city", EntityType: "LOCATION"}}, fields)
}

func TestStructuredEngine_AnalyzeFrame(t *testing.T) {
	e := NewStructuredEngine(structuredAnalyzer(), nil)
	frame, err := domain.NewFrame([]map[string]any{
		{"who": "John", "where": "London", "id": float64(1)},
		{"who": "John Smith", "where": "John Street", "id": float64(2)},
		{"who": "", "where": "London", "id": float64(3)},
	})
	require.NoError(t, err)

	fields, err := e.Analyze(context.Background(), frame, domain.AnalysisOptions{MinScore: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []domain.DetectedField{
		{FieldName: "where", EntityType: "LOCATION"},
		{FieldName: "who", EntityType: "PERSON"},
	}, fields)
}

func TestStructuredEngine_RewriteDocument(t *testing.T) {
	e := NewStructuredEngine(structuredAnalyzer(), nil)
	doc := domain.JSONDocument{
		"name":    "John",
		"aliases": []any{"Johnny", "John"},
		"contact": map[string]any{"city": "London", "zip": float64(12345)},
	}
	fields := []domain.DetectedField{
		{FieldName: "name", EntityType: "PERSON"},
		{FieldName: "aliases", EntityType: "PERSON"},
		{FieldName: "contact.city", EntityType: "LOCATION"},
	}

	method, err := pseudonym.New(domain.MethodCounter, nil)
	require.NoError(t, err)
	op := NewPseudonymizeOperator(NewOperatorContext(method, nil, nil), nil)

	out, err := e.Rewrite(context.Background(), doc.Clone(), fields, op)
	require.NoError(t, err)

	rewritten := out.(domain.JSONDocument)
	assert.Equal(t, []any{"<PERSON_1>", "<PERSON_2>"}, rewritten["aliases"])
	assert.Equal(t, "<PERSON_2>", rewritten["name"])
	assert.Equal(t, map[string]any{"city": "<LOCATION_1>", "zip": float64(12345)}, rewritten["contact"])
	assert.Equal(t, "John", doc["name"], "clone keeps the input intact")
}

func TestStructuredEngine_RewriteFrame(t *testing.T) {
	e := NewStructuredEngine(structuredAnalyzer(), nil)
	frame, err := domain.NewFrame([]map[string]any{
		{"who": "John", "id": float64(1)},
		{"who": "", "id": float64(2)},
		{"who": nil, "id": float64(3)},
	})
	require.NoError(t, err)

	op, err := NewOperator(domain.OperatorReplace, nil)
	require.NoError(t, err)

	out, err := e.Rewrite(context.Background(), frame, []domain.DetectedField{{FieldName: "who", EntityType: "PERSON"}}, op)
	require.NoError(t, err)

	rows := out.(*domain.Frame).Records
	assert.Equal(t, "<PERSON>", rows[0]["who"])
	assert.Equal(t, "", rows[1]["who"])
	assert.Nil(t, rows[2]["who"])
	assert.Equal(t, float64(1), rows[0]["id"])
}

func TestStructuredEngine_AnalyzerError(t *testing.T) {
	e := NewStructuredEngine(&wordAnalyzer{err: errors.New("engine down")}, nil)
	_, err := e.Analyze(context.Background(), domain.JSONDocument{"a": "b"}, domain.AnalysisOptions{})
	assert.EqualError(t, err, "engine down")
}
