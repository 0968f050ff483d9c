package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestClient_PostSendsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "London", body["text"])

		_ = json.NewEncoder(w).Encode(map[string]string{"text": "United Kingdom"})
	}))
	defer server.Close()

	client := NewClient(fastOptions(), nil)
	out, err := client.DoJSON(context.Background(), Request{
		Method: http.MethodPost,
		URL:    server.URL,
		Data:   map[string]any{"text": "London"},
	})
	require.NoError(t, err)
	assert.Equal(t, "United Kingdom", out["text"])
}

func TestClient_GetSendsQueryParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "London", r.URL.Query().Get("city"))
		_, _ = w.Write([]byte(`{"country":"UK"}`))
	}))
	defer server.Close()

	client := NewClient(fastOptions(), nil)
	out, err := client.DoJSON(context.Background(), Request{
		Method: http.MethodGet,
		URL:    server.URL,
		Data:   map[string]any{"city": "London"},
	})
	require.NoError(t, err)
	assert.Equal(t, "UK", out["country"])
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(fastOptions(), nil)
	out, err := client.DoJSON(context.Background(), Request{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "ok", out["text"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(fastOptions(), nil)
	_, err := client.Do(context.Background(), Request{URL: server.URL})
	require.Error(t, err)

	var he *Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusServiceUnavailable, he.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(fastOptions(), nil)
	_, err := client.Do(context.Background(), Request{URL: server.URL})
	require.Error(t, err)
	assert.True(t, IsClientStatus(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_InvalidJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(fastOptions(), nil)
	_, err := client.DoJSON(context.Background(), Request{URL: server.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(fastOptions(), nil)
	start := time.Now()
	_, err := client.Do(context.Background(), Request{URL: server.URL, Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opts := fastOptions()
	opts.MaxAttempts = 1
	opts.BreakerEnabled = true
	opts.BreakerTimeout = time.Minute
	opts.BreakerMaxFailures = 2
	client := NewClient(opts, nil)

	for i := 0; i < 2; i++ {
		_, err := client.Do(context.Background(), Request{URL: server.URL})
		require.Error(t, err)
	}

	_, err := client.Do(context.Background(), Request{URL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	breaker := NewCircuitBreaker("client-errors", time.Minute, 1)

	for i := 0; i < 3; i++ {
		err := breaker.Execute(func() error {
			return &Error{Method: http.MethodPost, URL: "http://x", StatusCode: http.StatusBadRequest}
		})
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, breaker.State())
}
