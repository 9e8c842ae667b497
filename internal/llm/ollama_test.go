package llm_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"syscall"
	"testing"

	"github.com/agentdesk/agentdesk/internal/llm"
	"github.com/agentdesk/agentdesk/pkg/models"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("request path = %q, want /v1/chat/completions", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"choices": [{"message": {"content": "hello from the model"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer srv.Close()

	c := llm.NewClient(srv.URL, "llama3.2")
	result, err := c.Chat(context.Background(), "", []models.ChatMessage{
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if result.Content != "hello from the model" {
		t.Errorf("Chat().Content = %q, want %q", result.Content, "hello from the model")
	}
	if result.Model != "llama3.2" {
		t.Errorf("Chat().Model = %q, want default %q", result.Model, "llama3.2")
	}
	if result.Usage.TotalTokens != 17 {
		t.Errorf("Chat().Usage.TotalTokens = %d, want 17", result.Usage.TotalTokens)
	}

	if c.AvgLatencyMs("llama3.2") == 0 {
		t.Error("AvgLatencyMs() = 0 after a successful call, want > 0")
	}
}

func TestChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := llm.NewClient(srv.URL, "llama3.2")
	if _, err := c.Chat(context.Background(), "missing-model", nil); err == nil {
		t.Error("Chat() with error status should return error, got nil")
	}
}

// timeoutError mimics the net.Error the http client returns when the
// request deadline passes.
type timeoutError struct{}

func (timeoutError) Error() string   { return "Client.Timeout exceeded while awaiting headers" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsUnreachable(t *testing.T) {
	wrap := func(inner error) error {
		return fmt.Errorf("ollama: request failed: %w",
			&url.Error{Op: "Post", URL: "http://localhost:11434/v1/chat/completions", Err: inner})
	}

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", wrap(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}), true},
		{"dns not found", wrap(&net.DNSError{Err: "no such host", Name: "nope", IsNotFound: true}), true},
		// A slow instance is still up: timeouts surface to the caller
		// instead of degrading to demo output.
		{"timeout", wrap(timeoutError{}), false},
		{"bad status", errors.New("ollama: status 404: model not found"), false},
	}

	for _, tc := range cases {
		if got := llm.IsUnreachable(tc.err); got != tc.want {
			t.Errorf("IsUnreachable(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("request path = %q, want /api/tags", r.URL.Path)
		}
		w.Write([]byte(`{"models": [{"name": "llama3.2"}, {"name": "mistral"}]}`))
	}))

	c := llm.NewClient(srv.URL, "llama3.2")
	if !c.Reachable(context.Background()) {
		t.Error("Reachable() = false against a live server, want true")
	}

	names, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("ListModels() returned %d models, want 2", len(names))
	}

	srv.Close()
	if c.Reachable(context.Background()) {
		t.Error("Reachable() = true against a closed server, want false")
	}
}
