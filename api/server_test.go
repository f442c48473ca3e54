package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sicko7947/smartflow"
	"github.com/sicko7947/smartflow/engine"
	"github.com/sicko7947/smartflow/optimizer"
	"github.com/sicko7947/smartflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	server *Server
	engine *engine.Engine
	store  *store.MemoryStore
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	memStore := store.NewMemoryStore()
	logger := zerolog.New(zerolog.NewTestWriter(t))

	eng := engine.NewEngine(memStore,
		engine.WithLogger(logger),
		engine.WithConfig(smartflow.EngineConfig{
			RetryBaseDelay:               time.Millisecond,
			MinExecutionsForOptimization: 1,
		}),
		engine.WithHandler(smartflow.StepTypeCustom, meteredHandler),
	)
	learner := eng.Learner().(*optimizer.Learner)

	base := []Option{WithLogger(logger), WithHistory(learner.History())}
	return &testServer{
		server: New(eng, memStore, append(base, opts...)...),
		engine: eng,
		store:  memStore,
	}
}

// meteredHandler echoes the input and reports token usage
func meteredHandler(_ context.Context, req *engine.StepRequest) (map[string]any, error) {
	return smartflow.MergeMaps(req.Input, map[string]any{
		"scored":           true,
		smartflow.UsageKey: map[string]any{"tokensUsed": 40},
	}), nil
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func greetingWorkflow() map[string]any {
	return map[string]any{
		"name": "Greeting",
		"steps": []any{
			map[string]any{
				"id":     "greet",
				"type":   "transform",
				"config": map[string]any{"jq": `{greeting: ("hello " + .name)}`, "maxTokens": 200},
			},
			map[string]any{
				"id":   "score",
				"type": "custom",
			},
		},
		"triggers": []any{map[string]any{"type": "manual"}},
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestPutWorkflow_CreateAndReplace(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPut, "/api/v1/workflows/greeting", greetingWorkflow())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "greeting", body["id"])
	assert.Equal(t, float64(1), body["version"])

	stored, err := ts.store.GetWorkflow(context.Background(), "greeting")
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 2)

	replacement := greetingWorkflow()
	replacement["id"] = "ignored"
	replacement["description"] = "second revision"
	resp, body = ts.do(t, http.MethodPut, "/api/v1/workflows/greeting", replacement)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "greeting", body["id"])
	assert.Equal(t, float64(2), body["version"])

	stored, err = ts.store.GetWorkflow(context.Background(), "greeting")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "second revision", stored.Description)
}

func TestPutWorkflow_Invalid(t *testing.T) {
	ts := newTestServer(t)

	wf := greetingWorkflow()
	wf["steps"] = []any{map[string]any{"id": "x", "type": "translate"}}
	resp, body := ts.do(t, http.MethodPut, "/api/v1/workflows/bad", wf)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, smartflow.ErrCodeValidation, body["code"])
	assert.Contains(t, body["error"], "unknown step type")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/workflows/bad", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	raw, err := ts.server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	_, err = ts.store.GetWorkflow(context.Background(), "bad")
	assert.ErrorIs(t, err, smartflow.ErrWorkflowNotFound)
}

func TestGetWorkflow(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPut, "/api/v1/workflows/greeting", greetingWorkflow())

	resp, body := ts.do(t, http.MethodGet, "/api/v1/workflows/greeting", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Greeting", body["name"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, smartflow.ErrCodeNotFound, body["code"])
}

func TestGetWorkflow_LoadsFromStore(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.UpsertWorkflow(context.Background(), &smartflow.Workflow{
		ID:      "stored",
		Name:    "Stored",
		Version: 4,
		Steps:   []smartflow.WorkflowStep{{ID: "a", Type: smartflow.StepTypeClassify}},
	}))

	resp, body := ts.do(t, http.MethodGet, "/api/v1/workflows/stored", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(4), body["version"])
}

func TestRegister_StoredVersionWins(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.store.UpsertWorkflow(ctx, &smartflow.Workflow{
		ID:      "tuned",
		Version: 3,
		Steps: []smartflow.WorkflowStep{{
			ID:     "e",
			Type:   smartflow.StepTypeExtract,
			Config: map[string]any{"maxTokens": 490},
		}},
	}))

	fromFile := &smartflow.Workflow{
		ID:      "tuned",
		Version: 1,
		Steps: []smartflow.WorkflowStep{{
			ID:     "e",
			Type:   smartflow.StepTypeExtract,
			Config: map[string]any{"maxTokens": 1000},
		}},
	}
	live, err := ts.server.Register(ctx, fromFile)
	require.NoError(t, err)
	assert.Equal(t, 3, live.Version)
	assert.Equal(t, 490, live.Steps[0].Config["maxTokens"])

	stored, err := ts.store.GetWorkflow(ctx, "tuned")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Version)

	_, body := ts.do(t, http.MethodGet, "/api/v1/workflows/tuned", nil)
	assert.Equal(t, float64(3), body["version"])

	// a file at a higher version replaces the stored definition
	fromFile.Version = 5
	live, err = ts.server.Register(ctx, fromFile)
	require.NoError(t, err)
	assert.Same(t, fromFile, live)
	stored, err = ts.store.GetWorkflow(ctx, "tuned")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Version)
}

func TestExecute(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPut, "/api/v1/workflows/greeting", greetingWorkflow())

	resp, body := ts.do(t, http.MethodPost, "/api/v1/workflows/greeting/executions", map[string]any{
		"input":  map[string]any{"name": "ada"},
		"userId": "user-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "error")

	exec := body["execution"].(map[string]any)
	assert.Equal(t, "completed", exec["status"])
	assert.Equal(t, "user-1", exec["userId"])
	results := exec["results"].(map[string]any)
	assert.Equal(t, "hello ada", results["greeting"])
	assert.Equal(t, true, results["scored"])
	assert.NotContains(t, results, smartflow.UsageKey)
}

func TestExecute_EmptyBody(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPut, "/api/v1/workflows/plain", map[string]any{
		"steps": []any{map[string]any{"id": "c", "type": "classify"}},
	})

	resp, body := ts.do(t, http.MethodPost, "/api/v1/workflows/plain/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["execution"].(map[string]any)["status"])
}

func TestExecute_Failure(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPut, "/api/v1/workflows/strict", map[string]any{
		"steps": []any{map[string]any{
			"id":     "check",
			"type":   "validate",
			"config": map[string]any{"rules": []any{"amount > 100"}},
		}},
	})

	resp, body := ts.do(t, http.MethodPost, "/api/v1/workflows/strict/executions", map[string]any{
		"input": map[string]any{"amount": 5},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, "failed", body["execution"].(map[string]any)["status"])
}

func TestExecute_UnknownWorkflow(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.do(t, http.MethodPost, "/api/v1/workflows/missing/executions", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTrigger(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPut, "/api/v1/workflows/greeting", greetingWorkflow())

	resp, body := ts.do(t, http.MethodPost, "/api/v1/workflows/greeting/trigger/manual", map[string]any{
		"input": map[string]any{"name": "grace"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := body["execution"].(map[string]any)["results"].(map[string]any)
	assert.Equal(t, "hello grace", results["greeting"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/workflows/greeting/trigger/webhook", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "webhook")
}

func TestListExecutions(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPut, "/api/v1/workflows/greeting", greetingWorkflow())
	for _, name := range []string{"a", "b", "c"} {
		ts.do(t, http.MethodPost, "/api/v1/workflows/greeting/executions", map[string]any{
			"input": map[string]any{"name": name},
		})
	}

	resp, body := ts.do(t, http.MethodGet, "/api/v1/workflows/greeting/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["executions"], 3)

	resp, body = ts.do(t, http.MethodGet, "/api/v1/workflows/greeting/executions?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	executions := body["executions"].([]any)
	require.Len(t, executions, 1)
	newest := executions[0].(map[string]any)["results"].(map[string]any)
	assert.Equal(t, "hello c", newest["greeting"])

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/workflows/greeting/executions?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListExecutions_NoHistory(t *testing.T) {
	ts := newTestServer(t, WithHistory(nil))
	resp, _ := ts.do(t, http.MethodGet, "/api/v1/workflows/greeting/executions", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestOptimizations(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPut, "/api/v1/workflows/greeting", greetingWorkflow())

	resp, body := ts.do(t, http.MethodGet, "/api/v1/workflows/greeting/optimizations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["optimizations"])

	ts.do(t, http.MethodPost, "/api/v1/workflows/greeting/executions", map[string]any{
		"input": map[string]any{"name": "ada"},
	})

	resp, body = ts.do(t, http.MethodGet, "/api/v1/workflows/greeting/optimizations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	proposals := body["optimizations"].([]any)
	require.Len(t, proposals, 1)
	assert.Equal(t, "reduce_max_tokens", proposals[0].(map[string]any)["type"])

	// proposing never mutates the definition
	_, wf := ts.do(t, http.MethodGet, "/api/v1/workflows/greeting", nil)
	assert.Equal(t, float64(1), wf["version"])
}

func TestApplyOptimizations(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPut, "/api/v1/workflows/greeting", greetingWorkflow())

	resp, body := ts.do(t, http.MethodPost, "/api/v1/workflows/greeting/optimizations/apply", map[string]any{
		"types": []string{"reduce_max_tokens", "enable_caching"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["version"])

	greet := body["steps"].([]any)[0].(map[string]any)["config"].(map[string]any)
	assert.Equal(t, float64(140), greet["maxTokens"])
	assert.Equal(t, true, greet["cache"])

	stored, err := ts.store.GetWorkflow(context.Background(), "greeting")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
}

func TestApplyOptimizations_Rejected(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPut, "/api/v1/workflows/greeting", greetingWorkflow())

	resp, body := ts.do(t, http.MethodPost, "/api/v1/workflows/greeting/optimizations/apply", map[string]any{
		"types": []string{"rewrite_everything"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, smartflow.ErrCodeValidation, body["code"])

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/workflows/greeting/optimizations/apply", map[string]any{
		"types": []string{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, wf := ts.do(t, http.MethodGet, "/api/v1/workflows/greeting", nil)
	assert.Equal(t, float64(1), wf["version"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	memStore := store.NewMemoryStore()
	eng := engine.NewEngine(memStore, engine.WithLogger(zerolog.Nop()), engine.WithMetrics(metrics))
	srv := New(eng, memStore, WithGatherer(reg))

	_, err := srv.Register(context.Background(), &smartflow.Workflow{
		ID:      "plain",
		Version: 1,
		Steps:   []smartflow.WorkflowStep{{ID: "c", Type: smartflow.StepTypeClassify}},
	})
	require.NoError(t, err)
	resp, err := srv.App().Test(httptest.NewRequest(http.MethodPost, "/api/v1/workflows/plain/executions", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `smartflow_executions_total{status="completed",workflow_id="plain"} 1`)
}
