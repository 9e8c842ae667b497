// Package llm implements the Ollama client used by the dashboard agents
// and the workflow engine. Ollama exposes an OpenAI-compatible chat
// completions endpoint, so the wire types follow that shape.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/rs/zerolog/log"
)

// ChatResult is the outcome of a completed chat call.
type ChatResult struct {
	Content   string
	Model     string
	Usage     models.TokenUsage
	LatencyMs int64
}

// Client talks to a local Ollama instance.
type Client struct {
	baseURL      string
	defaultModel string
	client       *http.Client

	// Latency tracking: model name → rolling avg ms
	latencyMu sync.RWMutex
	latencies map[string]int64
}

// NewClient creates an Ollama client. baseURL defaults to
// http://localhost:11434 when empty.
func NewClient(baseURL, defaultModel string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Client{
		baseURL:      baseURL,
		defaultModel: defaultModel,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		latencies: make(map[string]int64),
	}
}

// DefaultModel returns the configured default model name.
func (c *Client) DefaultModel() string { return c.defaultModel }

type chatRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request. An empty model uses the default.
func (c *Client) Chat(ctx context.Context, model string, messages []models.ChatMessage) (*ChatResult, error) {
	if model == "" {
		model = c.defaultModel
	}

	start := time.Now()

	body, _ := json.Marshal(chatRequest{Model: model, Messages: messages})

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	latencyMs := time.Since(start).Milliseconds()
	c.trackLatency(model, latencyMs)

	return &ChatResult{
		Content:   content,
		Model:     model,
		LatencyMs: latencyMs,
		Usage: models.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *Client) trackLatency(model string, latencyMs int64) {
	c.latencyMu.Lock()
	prev := c.latencies[model]
	if prev == 0 {
		c.latencies[model] = latencyMs
	} else {
		// Exponential moving average
		c.latencies[model] = (prev*7 + latencyMs*3) / 10
	}
	c.latencyMu.Unlock()
}

// AvgLatencyMs returns the rolling average latency for a model, or 0 if
// the model has not been called yet.
func (c *Client) AvgLatencyMs(model string) int64 {
	c.latencyMu.RLock()
	defer c.latencyMu.RUnlock()
	return c.latencies[model]
}

// ListModels returns the model names available on the Ollama instance.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	url := c.baseURL + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}

	var tagsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tagsResp); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	names := make([]string, len(tagsResp.Models))
	for i, m := range tagsResp.Models {
		names[i] = m.Name
	}
	return names, nil
}

// IsUnreachable reports whether an error from Chat or ListModels means
// the Ollama instance is down, as opposed to a bad request or a failure
// mid-stream. Callers use this to decide on demo-mode fallback.
// A timeout means the instance is up but slow, so it is not unreachable.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// Any other dial failure means we never reached the instance.
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Reachable reports whether the Ollama instance responds to /api/tags.
// Used to decide whether agents fall back to demo mode.
func (c *Client) Reachable(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := c.ListModels(checkCtx); err != nil {
		log.Debug().Err(err).Str("base_url", c.baseURL).Msg("Ollama unreachable")
		return false
	}
	return true
}
