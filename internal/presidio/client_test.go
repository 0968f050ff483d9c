package presidio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/httpx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	doer := httpx.NewClient(httpx.Options{MaxAttempts: 1, InitialInterval: time.Millisecond}, nil)
	return NewClient(server.URL+"/", time.Second, doer, nil)
}

func TestClient_Analyze(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)

		var req AnalyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "José lives in London", req.Text)
		assert.Equal(t, "en", req.Language)
		assert.Equal(t, 0.4, req.ScoreThreshold)
		assert.Equal(t, []string{"PERSON", "LOCATION"}, req.Entities)

		_ = json.NewEncoder(w).Encode([]RecognizerResult{
			{EntityType: "PERSON", Start: 0, End: 4, Score: 0.85},
			{EntityType: "LOCATION", Start: 14, End: 20, Score: 0.85},
		})
	})

	entities, err := client.Analyze(context.Background(), "José lives in London", domain.AnalysisOptions{
		Language:    "en",
		MinScore:    0.4,
		EntityTypes: []string{"PERSON", "LOCATION"},
	})
	require.NoError(t, err)
	require.Len(t, entities, 2)

	// "é" is two bytes: character offsets shift by one after it
	assert.Equal(t, domain.Entity{Type: "PERSON", Start: 0, End: 5, Score: 0.85, Text: "José"}, entities[0])
	assert.Equal(t, domain.Entity{Type: "LOCATION", Start: 15, End: 21, Score: 0.85, Text: "London"}, entities[1])
}

func TestClient_AnalyzeDropsOutOfRange(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"entity_type":"PERSON","start":0,"end":99,"score":0.9}]`))
	})

	entities, err := client.Analyze(context.Background(), "John", domain.AnalysisOptions{Language: "en"})
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestClient_AnalyzeServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Analyze(context.Background(), "John", domain.AnalysisOptions{Language: "en"})
	assert.Error(t, err)
}

func TestClient_SupportedEntities(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/supportedentities", r.URL.Path)
		assert.Equal(t, "fr", r.URL.Query().Get("language"))
		_, _ = w.Write([]byte(`["PERSON","LOCATION","EMAIL_ADDRESS"]`))
	})

	entities, err := client.SupportedEntities(context.Background(), "fr")
	require.NoError(t, err)
	assert.Equal(t, []string{"PERSON", "LOCATION", "EMAIL_ADDRESS"}, entities)
}

func TestClient_Health(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`Presidio Analyzer service is up`))
	})
	assert.NoError(t, client.Health(context.Background()))
}

func TestRuneToByteOffsets(t *testing.T) {
	assert.Equal(t, []int{0, 1, 3, 4}, runeToByteOffsets("aéb"))
	assert.Equal(t, []int{0}, runeToByteOffsets(""))
}
