package collaborator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sicko7947/smartflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Invoke(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"entities":["ACME"],"_usage":{"tokensUsed":120}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("extraction", srv.URL, WithHeader("X-Api-Key", "secret"))
	out, err := c.Invoke(context.Background(), map[string]any{"document": "doc", "userId": "u1"})
	require.NoError(t, err)

	assert.Equal(t, "doc", got["document"])
	assert.Equal(t, "u1", got["userId"])
	assert.Equal(t, []any{"ACME"}, out["entities"])
	assert.Contains(t, out, smartflow.UsageKey)
	assert.Equal(t, "extraction", c.Name())
}

func TestHTTPClient_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPClient("summarization", srv.URL).Invoke(context.Background(), map[string]any{})
	require.Error(t, err)

	var we *smartflow.WorkflowError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, smartflow.ErrCodeCollaborator, we.Code)
	assert.Equal(t, http.StatusServiceUnavailable, we.Details["status"])
	assert.Contains(t, we.Details["body"], "model overloaded")
	assert.True(t, smartflow.IsRetryable(err))
}

func TestHTTPClient_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient("custom", srv.URL).Invoke(context.Background(), map[string]any{})
	var we *smartflow.WorkflowError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, smartflow.ErrCodeCollaborator, we.Code)
}

func TestHTTPClient_EmptyObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}))
	defer srv.Close()

	out, err := NewHTTPClient("custom", srv.URL).Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestHTTPClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewHTTPClient("slow", srv.URL, WithTimeout(20*time.Millisecond))
	_, err := c.Invoke(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestHTTPClient_CircuitOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient("flaky", srv.URL, WithCircuitBreaker(2, time.Minute))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Invoke(ctx, map[string]any{})
		require.Error(t, err)
	}

	_, err := c.Invoke(ctx, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Equal(t, int32(2), calls.Load(), "open breaker should not reach the server")
}

func TestHTTPClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient("custom", srv.URL).Invoke(ctx, map[string]any{})
	require.Error(t, err)
	assert.True(t, smartflow.IsCancelled(err))
}
