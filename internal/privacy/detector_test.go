package privacy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/domain"
)

func newDetector(t *testing.T, cfg config.BuiltinConfig) *Detector {
	t.Helper()
	d, err := New(cfg, nil)
	require.NoError(t, err)
	return d
}

func types(entities []domain.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Type
	}
	return out
}

func TestDetector_JohnLivesInLondon(t *testing.T) {
	d := newDetector(t, config.BuiltinConfig{})

	entities, err := d.Analyze(context.Background(), "John lives in London", domain.AnalysisOptions{Language: "en", MinScore: 0.5})
	require.NoError(t, err)
	require.Len(t, entities, 2)

	assert.Equal(t, domain.Entity{Type: "PERSON", Start: 0, End: 4, Score: denyListScore, Text: "John"}, entities[0])
	assert.Equal(t, domain.Entity{Type: "LOCATION", Start: 14, End: 20, Score: denyListScore, Text: "London"}, entities[1])
}

func TestDetector_PatternRules(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		span string
	}{
		{name: "email", text: "mail me at jane.doe@example.org today", want: EntityEmail, span: "jane.doe@example.org"},
		{name: "credit card", text: "card 4111 1111 1111 1111 expires", want: EntityCreditCard, span: "4111 1111 1111 1111"},
		{name: "iban", text: "pay to GB82 WEST 1234 5698 7654 32 please", want: EntityIBAN, span: "GB82 WEST 1234 5698 7654 32"},
		{name: "ssn", text: "ssn 078-05-1120 on file", want: EntitySSN, span: "078-05-1120"},
		{name: "phone", text: "call 212-555-0143 now", want: EntityPhone, span: "212-555-0143"},
		{name: "ip", text: "from 192.168.10.254 at noon", want: EntityIP, span: "192.168.10.254"},
		{name: "url", text: "see https://example.com/a?b=c.", want: EntityURL, span: "https://example.com/a?b=c"},
		{name: "mac", text: "nic 00:1A:2B:3C:4D:5E up", want: EntityMAC, span: "00:1A:2B:3C:4D:5E"},
		{name: "date", text: "born 1990-04-12 in", want: EntityDateTime, span: "1990-04-12"},
	}

	d := newDetector(t, config.BuiltinConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities, err := d.Analyze(context.Background(), tt.text, domain.AnalysisOptions{Language: "en", EntityTypes: []string{tt.want}})
			require.NoError(t, err)
			require.Len(t, entities, 1)
			assert.Equal(t, tt.span, entities[0].Text)
			assert.Equal(t, tt.span, tt.text[entities[0].Start:entities[0].End])
		})
	}
}

func TestDetector_ChecksumsRejectNoise(t *testing.T) {
	d := newDetector(t, config.BuiltinConfig{})
	opts := domain.AnalysisOptions{Language: "en", EntityTypes: []string{EntityCreditCard, EntityIBAN, EntitySSN}}

	entities, err := d.Analyze(context.Background(), "order 4111 1111 1111 1112, ref GB00 WEST 1234 5698 7654 32, id 000-12-3456", opts)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestDetector_MinScoreAndAllowlist(t *testing.T) {
	d := newDetector(t, config.BuiltinConfig{})
	text := "John visited https://example.com"

	entities, err := d.Analyze(context.Background(), text, domain.AnalysisOptions{Language: "en", MinScore: 0.7})
	require.NoError(t, err)
	assert.Equal(t, []string{"PERSON"}, types(entities))

	entities, err = d.Analyze(context.Background(), text, domain.AnalysisOptions{Language: "en", EntityTypes: []string{"URL"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"URL"}, types(entities))
}

func TestDetector_CustomDenyLists(t *testing.T) {
	d := newDetector(t, config.BuiltinConfig{
		DenyLists: map[string][]string{
			"location": {"Springfield", "New Springfield"},
			"ORGANIZATION": {"Acme Corp"},
		},
	})

	entities, err := d.Analyze(context.Background(), "Acme Corp moved to New Springfield from London", domain.AnalysisOptions{Language: "en"})
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "ORGANIZATION", entities[0].Type)
	assert.Equal(t, "New Springfield", entities[1].Text)
}

func TestDetector_Languages(t *testing.T) {
	d := newDetector(t, config.BuiltinConfig{Languages: []string{"en", "FR"}})
	assert.Equal(t, []string{"en", "fr"}, d.SupportedLanguages())

	_, err := d.Analyze(context.Background(), "x", domain.AnalysisOptions{Language: "de"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.True(t, domain.IsClientError(err))

	_, err = d.SupportedEntities(context.Background(), "de")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDetector_ConfigureDetectors(t *testing.T) {
	d := newDetector(t, config.BuiltinConfig{Detectors: []string{"email", "PERSON"}})
	assert.Equal(t, []string{"deny_list_person", "email"}, d.enabledRules())

	supported, err := d.SupportedEntities(context.Background(), "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"EMAIL_ADDRESS", "PERSON"}, supported)

	byType := newDetector(t, config.BuiltinConfig{Detectors: []string{"url", "IP_ADDRESS"}})
	assert.Equal(t, []string{"ip_address", "url"}, byType.enabledRules())

	_, err = New(config.BuiltinConfig{Detectors: []string{"telepathy"}}, nil)
	assert.Error(t, err)
}

func TestDetector_ContextCancelled(t *testing.T) {
	d := newDetector(t, config.BuiltinConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Analyze(ctx, "John", domain.AnalysisOptions{Language: "en"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScrubHeaders(t *testing.T) {
	headers := map[string][]string{
		"Authorization": {"Bearer abc"},
		"X-Api-Key":     {"k"},
		"Content-Type":  {"application/json"},
	}

	scrubbed := ScrubHeaders(headers, nil)
	assert.Equal(t, []string{"[REDACTED]"}, scrubbed["Authorization"])
	assert.Equal(t, []string{"[REDACTED]"}, scrubbed["X-Api-Key"])
	assert.Equal(t, []string{"application/json"}, scrubbed["Content-Type"])
	assert.Equal(t, []string{"Bearer abc"}, headers["Authorization"])
}
