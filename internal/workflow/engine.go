// Package workflow implements the sequential pipeline engine.
//
// A workflow is an ordered list of typed nodes. The engine runs one
// node at a time, feeding each node's output into the next via
// placeholders that reference nodes by id ({{research.output}}) or by
// 1-indexed position ({{node_2.output}}). The first node failure fails
// the whole execution; there are no retries and no partial results.
//
// Execution flow:
//  1. Execution row created as pending, run ID returned immediately
//  2. Background goroutine marks it running and walks the nodes
//  3. Agent nodes call the LLM; utility nodes run in-engine
//  4. Per-node log lines are appended for the polling API
//  5. Terminal status (completed/failed) is written exactly once
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentdesk/agentdesk/internal/agents"
	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Engine executes workflow pipelines.
type Engine struct {
	store  store.Store
	agents *agents.Runner
	client *http.Client

	// Running executions: execution ID → cancel func
	runsMu sync.RWMutex
	runs   map[string]context.CancelFunc
}

// NewEngine creates a workflow execution engine.
func NewEngine(s store.Store, runner *agents.Runner) *Engine {
	return &Engine{
		store:  s,
		agents: runner,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		runs: make(map[string]context.CancelFunc),
	}
}

// Execute starts an async workflow execution. Returns the execution ID
// immediately; the pipeline runs in the background.
func (e *Engine) Execute(ctx context.Context, wf *models.Workflow, userID string, trigger models.TriggerType, input map[string]interface{}) (string, error) {
	exec := &models.Execution{
		ID:          uuid.New().String(),
		WorkflowID:  wf.ID,
		UserID:      userID,
		Status:      models.ExecutionPending,
		TriggerType: trigger,
		InputData:   input,
		CreatedAt:   time.Now().UTC(),
	}

	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}

	execCtx, cancel := context.WithCancel(context.Background())
	e.runsMu.Lock()
	e.runs[exec.ID] = cancel
	e.runsMu.Unlock()

	log.Info().
		Str("execution_id", exec.ID).
		Str("workflow", wf.Name).
		Int("nodes", len(wf.Data.Nodes)).
		Msg("🚀 Workflow execution started")

	go e.executeAsync(execCtx, exec, wf)

	return exec.ID, nil
}

// Cancel cancels a running execution. Returns false if the execution
// is not currently running.
func (e *Engine) Cancel(executionID string) bool {
	e.runsMu.Lock()
	cancel, ok := e.runs[executionID]
	if ok {
		cancel()
		delete(e.runs, executionID)
	}
	e.runsMu.Unlock()
	return ok
}

// ── Pipeline execution ──────────────────────────────────────

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

func (e *Engine) executeAsync(ctx context.Context, exec *models.Execution, wf *models.Workflow) {
	defer func() {
		e.runsMu.Lock()
		delete(e.runs, exec.ID)
		e.runsMu.Unlock()
	}()

	now := time.Now().UTC()
	exec.Status = models.ExecutionRunning
	exec.StartedAt = &now
	if err := e.store.UpdateExecution(context.Background(), exec); err != nil {
		log.Error().Err(err).Str("execution_id", exec.ID).Msg("Failed to mark execution running")
		return
	}

	e.appendLog(exec.ID, "workflow", "workflow", "info",
		fmt.Sprintf("Starting workflow execution %s", exec.ID), nil)

	nodes := wf.Data.Nodes
	initialInput := initialInputText(exec.InputData)

	// Outputs keyed by node id, plus a positional alias per node
	// (node_1, node_2, ...) so either reference style resolves.
	outputs := make(map[string]string, 2*len(nodes))
	lastOutput := ""

	for i, node := range nodes {
		select {
		case <-ctx.Done():
			e.failExecution(exec, "execution canceled")
			return
		default:
		}

		nodeKey := "node_" + strconv.Itoa(i+1)
		start := time.Now()

		e.appendLog(exec.ID, node.ID, string(node.Type), "info",
			fmt.Sprintf("Node %s started", node.ID), nil)

		output, err := e.executeNode(ctx, node, initialInput, lastOutput, outputs)
		if err != nil {
			e.appendLog(exec.ID, node.ID, string(node.Type), "error",
				fmt.Sprintf("Node %s failed: %v", node.ID, err),
				map[string]interface{}{"duration_ms": time.Since(start).Milliseconds()})
			e.failExecution(exec, fmt.Sprintf("node %s failed: %v", node.ID, err))
			return
		}

		if node.ID != "" {
			outputs[node.ID] = output
		}
		outputs[nodeKey] = output
		lastOutput = output

		e.appendLog(exec.ID, node.ID, string(node.Type), "info",
			fmt.Sprintf("Node %s completed", node.ID),
			map[string]interface{}{"duration_ms": time.Since(start).Milliseconds()})
	}

	results := make(map[string]interface{}, len(outputs))
	for k, v := range outputs {
		results[k] = v
	}
	e.completeExecution(exec, map[string]interface{}{
		"output":  lastOutput,
		"results": results,
	})
}

// executeNode dispatches a single node by type and returns its output text.
func (e *Engine) executeNode(ctx context.Context, node models.Node, initialInput, lastOutput string, outputs map[string]string) (string, error) {
	input := resolveTemplate(node.Config.Input, initialInput, outputs)
	if input == "" {
		// Empty input chains from the previous node, or falls back to
		// the execution input for the first node.
		if lastOutput != "" {
			input = lastOutput
		} else {
			input = initialInput
		}
	}

	if node.Type.IsAgentNode() {
		prompt := resolveTemplate(node.Config.Prompt, initialInput, outputs)
		text := input
		if prompt != "" {
			text = prompt
			if input != "" {
				text = prompt + "\n\n" + input
			}
		}

		model, _ := node.Config.Extra["model"].(string)
		result, err := e.agents.ExecuteRole(ctx, string(node.Type), node.Type, model, text)
		if err != nil {
			return "", err
		}
		return result.Output, nil
	}

	switch node.Type {
	case models.NodeHTTPRequest:
		return e.runHTTPRequest(ctx, node, initialInput, outputs)
	case models.NodeCondition:
		return runCondition(node, input, initialInput, outputs)
	case models.NodeTransform:
		return runTransform(node, input)
	case models.NodeDelay:
		return runDelay(ctx, node, input)
	default:
		return "", fmt.Errorf("unknown node type: %s", node.Type)
	}
}

// resolveTemplate substitutes {{input}} and node references like
// {{research.output}} or {{node_2.output}}. The segment before the
// first dot names the node; unknown references resolve to the empty
// string.
func resolveTemplate(tmpl, initialInput string, outputs map[string]string) string {
	if tmpl == "" {
		return ""
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := strings.TrimSpace(match[2 : len(match)-2])
		if key == "input" {
			return initialInput
		}
		if dot := strings.IndexByte(key, '.'); dot >= 0 {
			key = key[:dot]
		}
		return outputs[key]
	})
}

// initialInputText extracts the free-text input from the execution's
// input data.
func initialInputText(input map[string]interface{}) string {
	if input == nil {
		return ""
	}
	for _, key := range []string{"input", "text", "query", "task", "data"} {
		if s, ok := input[key].(string); ok && s != "" {
			return s
		}
	}
	b, _ := json.Marshal(input)
	if string(b) == "{}" {
		return ""
	}
	return string(b)
}

func (e *Engine) appendLog(executionID, nodeID, nodeType, level, message string, data map[string]interface{}) {
	entry := &models.ExecutionLog{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		NodeID:      nodeID,
		NodeType:    nodeType,
		Level:       level,
		Message:     message,
		Data:        data,
		Timestamp:   time.Now().UTC(),
	}
	if err := e.store.AppendExecutionLog(context.Background(), entry); err != nil {
		log.Warn().Err(err).Str("execution_id", executionID).Msg("Failed to append execution log")
	}
}

// ── Execution lifecycle ─────────────────────────────────────

func (e *Engine) completeExecution(exec *models.Execution, output map[string]interface{}) {
	now := time.Now().UTC()
	exec.Status = models.ExecutionCompleted
	exec.CompletedAt = &now
	exec.OutputData = output

	if err := e.store.UpdateExecution(context.Background(), exec); err != nil {
		log.Error().Err(err).Str("execution_id", exec.ID).Msg("Failed to update completed execution")
		return
	}

	e.appendLog(exec.ID, "workflow", "workflow", "info",
		fmt.Sprintf("Workflow execution %s completed", exec.ID), nil)

	log.Info().
		Str("execution_id", exec.ID).
		Int64("duration_ms", now.Sub(exec.CreatedAt).Milliseconds()).
		Msg("🎉 Workflow execution completed")
}

func (e *Engine) failExecution(exec *models.Execution, errMsg string) {
	now := time.Now().UTC()
	exec.Status = models.ExecutionFailed
	exec.CompletedAt = &now
	exec.ErrorMessage = errMsg

	if err := e.store.UpdateExecution(context.Background(), exec); err != nil {
		log.Error().Err(err).Str("execution_id", exec.ID).Msg("Failed to update failed execution")
		return
	}

	e.appendLog(exec.ID, "workflow", "workflow", "error",
		fmt.Sprintf("Workflow execution failed: %s", errMsg), nil)

	log.Error().
		Str("execution_id", exec.ID).
		Str("error", errMsg).
		Msg("💥 Workflow execution failed")
}
