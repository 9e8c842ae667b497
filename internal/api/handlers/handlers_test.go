package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/agentdesk/agentdesk/internal/agents"
	"github.com/agentdesk/agentdesk/internal/api"
	"github.com/agentdesk/agentdesk/internal/api/handlers"
	"github.com/agentdesk/agentdesk/internal/auth"
	"github.com/agentdesk/agentdesk/internal/llm"
	"github.com/agentdesk/agentdesk/internal/metrics"
	"github.com/agentdesk/agentdesk/internal/rag"
	"github.com/agentdesk/agentdesk/internal/scheduler"
	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/internal/vectorstore"
	"github.com/agentdesk/agentdesk/internal/workflow"
)

// fixedEmbedder avoids network calls in handler tests.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	vecs := make([][]float64, len(texts))
	for i := range texts {
		vecs[i] = []float64{1, 0, 0}
	}
	return vecs, nil
}

func (fixedEmbedder) Dimensions() int { return 3 }

func (fixedEmbedder) HealthCheck(context.Context) error { return nil }

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	os.Setenv("AGENTDESK_DATA_DIR", dir)
	defer os.Unsetenv("AGENTDESK_DATA_DIR")

	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	tokens := auth.NewTokenService("test-secret", time.Hour)
	chain := auth.NewProviderChain()
	chain.RegisterProvider(auth.NewJWTProvider(tokens, s))
	chain.RegisterProvider(auth.NewAPIKeyProvider(s))

	client := llm.NewClient("http://localhost:1", "llama3.2")
	runner := agents.NewRunner(client, true)
	engine := workflow.NewEngine(s, runner)
	metricsSvc := metrics.NewService(s)
	ragSvc := rag.NewService(s, fixedEmbedder{}, vectorstore.NewEmbeddedStore(), client)
	sched := scheduler.New(s, engine)

	h := handlers.New(s, tokens, runner, engine, metricsSvc, ragSvc, client, sched, "test")
	return api.NewRouter(h, chain)
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return out
}

// registerAndLogin creates a user and returns a session token.
func registerAndLogin(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    username + "@example.com",
		"username": username,
		"password": "hunter22",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status = %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d (%s)", rec.Code, rec.Body.String())
	}
	token, _ := decode(t, rec)["access_token"].(string)
	if token == "" {
		t.Fatal("login returned no access_token")
	}
	return token
}

func TestRegisterDuplicate(t *testing.T) {
	h := newTestAPI(t)
	registerAndLogin(t, h, "alice")

	rec := doJSON(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "alice@example.com",
		"username": "alice2",
		"password": "pw123456",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate email: status = %d, want 400", rec.Code)
	}
}

func TestMe(t *testing.T) {
	h := newTestAPI(t)
	token := registerAndLogin(t, h, "alice")

	rec := doJSON(t, h, http.MethodGet, "/api/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status = %d", rec.Code)
	}
	if got := decode(t, rec)["username"]; got != "alice" {
		t.Errorf("username = %v, want alice", got)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	h := newTestAPI(t)
	rec := doJSON(t, h, http.MethodGet, "/api/workflows", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWorkflowLifecycle(t *testing.T) {
	h := newTestAPI(t)
	token := registerAndLogin(t, h, "alice")

	rec := doJSON(t, h, http.MethodPost, "/api/workflows", token, map[string]interface{}{
		"name": "pipeline",
		"workflow_data": map[string]interface{}{
			"nodes": []map[string]interface{}{
				{"id": "n1", "type": "transform", "config": map[string]interface{}{
					"extra": map[string]interface{}{"operation": "uppercase"},
				}},
				{"id": "n2", "type": "transform", "config": map[string]interface{}{
					"input": "{{node_1.output}}",
					"extra": map[string]interface{}{"operation": "trim"},
				}},
			},
			// Client edges are discarded and rebuilt from node order.
			"edges": []map[string]string{{"source": "n2", "target": "n1"}},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create workflow: status = %d (%s)", rec.Code, rec.Body.String())
	}
	created := decode(t, rec)
	wfID, _ := created["id"].(string)

	data := created["workflow_data"].(map[string]interface{})
	edges := data["edges"].([]interface{})
	if len(edges) != 1 {
		t.Fatalf("derived edges = %d, want 1", len(edges))
	}
	edge := edges[0].(map[string]interface{})
	if edge["source"] != "n1" || edge["target"] != "n2" {
		t.Errorf("edge = %v, want n1 -> n2", edge)
	}

	// Execute and poll to terminal state
	rec = doJSON(t, h, http.MethodPost, "/api/workflows/"+wfID+"/execute", token, map[string]interface{}{
		"input_data": map[string]interface{}{"text": "  hello  "},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("execute: status = %d (%s)", rec.Code, rec.Body.String())
	}
	execID, _ := decode(t, rec)["id"].(string)

	deadline := time.Now().Add(5 * time.Second)
	var status string
	for time.Now().Before(deadline) {
		rec = doJSON(t, h, http.MethodGet, "/api/executions/"+execID, token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("get execution: status = %d", rec.Code)
		}
		exec := decode(t, rec)["execution"].(map[string]interface{})
		status, _ = exec["status"].(string)
		if status == "completed" || status == "failed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status != "completed" {
		t.Fatalf("execution status = %q, want completed", status)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/executions/"+execID+"/logs", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logs: status = %d", rec.Code)
	}
	var logs []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil {
		t.Fatalf("logs not a JSON array: %v", err)
	}
	if len(logs) == 0 {
		t.Error("expected execution logs")
	}

	// Other users cannot see the workflow
	otherToken := registerAndLogin(t, h, "bob")
	rec = doJSON(t, h, http.MethodGet, "/api/workflows/"+wfID, otherToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-user get: status = %d, want 404", rec.Code)
	}
}

func TestExecuteInactiveWorkflow(t *testing.T) {
	h := newTestAPI(t)
	token := registerAndLogin(t, h, "alice")

	rec := doJSON(t, h, http.MethodPost, "/api/workflows", token, map[string]interface{}{
		"name":          "wf",
		"workflow_data": map[string]interface{}{"nodes": []interface{}{}},
	})
	wfID, _ := decode(t, rec)["id"].(string)

	rec = doJSON(t, h, http.MethodPut, "/api/workflows/"+wfID, token, map[string]interface{}{
		"is_active": false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/workflows/"+wfID+"/execute", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("execute inactive: status = %d, want 400", rec.Code)
	}
}

func TestAgentExecuteDemoModeRecordsMetrics(t *testing.T) {
	h := newTestAPI(t)
	token := registerAndLogin(t, h, "alice")

	rec := doJSON(t, h, http.MethodPost, "/api/agents/execute", token, map[string]string{
		"agent_id":   "email-summarizer",
		"input_text": "Subject: budget review needed by Friday",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("execute agent: status = %d (%s)", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["demo_mode"] != true {
		t.Error("expected demo_mode true with unreachable Ollama")
	}
	if body["output"] == "" {
		t.Error("expected demo output")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/agents/metrics?agent_type=email-summarizer", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d", rec.Code)
	}
	m := decode(t, rec)
	if m["total_executions"].(float64) != 1 {
		t.Errorf("total_executions = %v, want 1", m["total_executions"])
	}

	// Rate the run and read it back
	execID, _ := body["execution_id"].(string)
	rec = doJSON(t, h, http.MethodPost, "/api/agents/rate", token, map[string]interface{}{
		"execution_id": execID,
		"rating":       5,
		"feedback":     "spot on",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("rate: status = %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/agents/my-stats", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("my-stats: status = %d", rec.Code)
	}
	stats := decode(t, rec)
	if stats["total_executions"].(float64) != 1 {
		t.Errorf("my-stats total = %v, want 1", stats["total_executions"])
	}
}

func TestAgentExecuteUnknownAgent(t *testing.T) {
	h := newTestAPI(t)
	token := registerAndLogin(t, h, "alice")

	rec := doJSON(t, h, http.MethodPost, "/api/agents/execute", token, map[string]string{
		"agent_id":   "not-an-agent",
		"input_text": "hi",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	h := newTestAPI(t)
	token := registerAndLogin(t, h, "alice")

	rec := doJSON(t, h, http.MethodPost, "/api/api-keys", token, map[string]string{"name": "ci"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create key: status = %d (%s)", rec.Code, rec.Body.String())
	}
	created := decode(t, rec)
	plaintext, _ := created["key"].(string)
	if !strings.HasPrefix(plaintext, "adk_") {
		t.Errorf("key = %q, want adk_ prefix", plaintext)
	}
	keyID, _ := created["id"].(string)

	// The minted key authenticates requests
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("X-API-Key", plaintext)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("API key auth: status = %d (%s)", rec2.Code, rec2.Body.String())
	}

	// List never exposes the hash
	rec = doJSON(t, h, http.MethodGet, "/api/api-keys", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list keys: status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "key_hash") {
		t.Error("list response leaks key hash")
	}

	rec = doJSON(t, h, http.MethodPatch, fmt.Sprintf("/api/api-keys/%s/deactivate", keyID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate: status = %d", rec.Code)
	}
	if decode(t, rec)["is_active"] != false {
		t.Error("key still active after deactivate")
	}

	// Deactivated key no longer authenticates
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("X-API-Key", plaintext)
	rec2 = httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusUnauthorized {
		t.Errorf("deactivated key auth: status = %d, want 401", rec2.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/api-keys/"+keyID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", rec.Code)
	}
}

func TestDocumentQueryWithoutUploads(t *testing.T) {
	h := newTestAPI(t)
	token := registerAndLogin(t, h, "alice")

	rec := doJSON(t, h, http.MethodPost, "/api/documents/query", token, map[string]string{
		"query": "what is the budget?",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("query without documents: status = %d, want 400", rec.Code)
	}
}

func TestHealthAndVersionArePublic(t *testing.T) {
	h := newTestAPI(t)
	for _, path := range []string{"/health", "/version"} {
		rec := doJSON(t, h, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}
