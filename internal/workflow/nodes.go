package workflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/expr-lang/expr"
)

// Utility node implementations. These run in-engine without the LLM.

// runHTTPRequest executes an http_request node. Config extras:
// "url" (required), "method" (default GET), "headers", "body".
// Placeholders are resolved in the URL and body.
func (e *Engine) runHTTPRequest(ctx context.Context, node models.Node, initialInput string, outputs map[string]string) (string, error) {
	url, _ := node.Config.Extra["url"].(string)
	if url == "" {
		return "", fmt.Errorf("http_request node %s has no url", node.ID)
	}
	url = resolveTemplate(url, initialInput, outputs)

	method, _ := node.Config.Extra["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	var body io.Reader
	if raw, _ := node.Config.Extra["body"].(string); raw != "" {
		body = bytes.NewReader([]byte(resolveTemplate(raw, initialInput, outputs)))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := node.Config.Extra["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	return string(respBody), nil
}

// runCondition evaluates an expression against the pipeline state.
// Config extra "expression" is an expr-lang expression with "input"
// (the resolved node input) and "results" (prior node outputs keyed by
// node_K) in scope. The output is "true" or "false".
func runCondition(node models.Node, input, initialInput string, outputs map[string]string) (string, error) {
	expression, _ := node.Config.Extra["expression"].(string)
	if expression == "" {
		return "", fmt.Errorf("condition node %s has no expression", node.ID)
	}

	env := map[string]interface{}{
		"input":   input,
		"initial": initialInput,
		"results": outputs,
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return "", fmt.Errorf("compile expression: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return "", fmt.Errorf("evaluate expression: %w", err)
	}

	if out == true {
		return "true", nil
	}
	return "false", nil
}

// runTransform applies a string transformation to the node input.
// Config extra "operation": uppercase | lowercase | trim | replace |
// truncate. "replace" takes "from"/"to"; "truncate" takes "length".
func runTransform(node models.Node, input string) (string, error) {
	operation, _ := node.Config.Extra["operation"].(string)
	switch operation {
	case "uppercase":
		return strings.ToUpper(input), nil
	case "lowercase":
		return strings.ToLower(input), nil
	case "trim":
		return strings.TrimSpace(input), nil
	case "replace":
		from, _ := node.Config.Extra["from"].(string)
		to, _ := node.Config.Extra["to"].(string)
		if from == "" {
			return "", fmt.Errorf("transform node %s: replace requires 'from'", node.ID)
		}
		return strings.ReplaceAll(input, from, to), nil
	case "truncate":
		length := 0
		if v, ok := node.Config.Extra["length"].(float64); ok {
			length = int(v)
		}
		if length <= 0 {
			return "", fmt.Errorf("transform node %s: truncate requires positive 'length'", node.ID)
		}
		if len(input) > length {
			return input[:length], nil
		}
		return input, nil
	case "":
		return "", fmt.Errorf("transform node %s has no operation", node.ID)
	default:
		return "", fmt.Errorf("transform node %s: unknown operation %q", node.ID, operation)
	}
}

// runDelay pauses the pipeline. Config extra "seconds" defaults to 1
// and is capped at 300. The input passes through unchanged.
func runDelay(ctx context.Context, node models.Node, input string) (string, error) {
	seconds := 1.0
	if v, ok := node.Config.Extra["seconds"].(float64); ok && v > 0 {
		seconds = v
	}
	if seconds > 300 {
		seconds = 300
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(time.Duration(seconds * float64(time.Second))):
	}
	return input, nil
}
