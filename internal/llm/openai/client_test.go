package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

func TestCompleteSendsChatRequest(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"# Brief"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), brief.CompletionRequest{
		System:      "sys",
		User:        "write",
		MaxTokens:   4000,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	require.Equal(t, "# Brief", out)
	require.Equal(t, "gpt-4o-mini", got.Model)
	require.Equal(t, 4000, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "write", got.Messages[1].Content)
}

func TestCompleteSurfacesProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "bad", BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), brief.CompletionRequest{User: "x"})
	require.ErrorContains(t, err, "status 401: Incorrect API key provided")
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 1}, nil)
	require.NoError(t, err)
	client.http.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)
	out, err := client.Complete(context.Background(), brief.CompletionRequest{User: "x"})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, int32(2), calls.Load())
}

func TestCompleteNoChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), brief.CompletionRequest{User: "x"})
	require.ErrorContains(t, err, "no choices")
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)
}
