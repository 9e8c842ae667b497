package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/agentdesk/agentdesk/internal/llm"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/rs/zerolog/log"
)

// Runner executes dashboard agents against the LLM, falling back to
// canned demo output when Ollama is unreachable or demo mode is forced.
type Runner struct {
	llm      *llm.Client
	demoMode bool
}

// NewRunner creates an agent runner.
func NewRunner(client *llm.Client, demoMode bool) *Runner {
	return &Runner{llm: client, demoMode: demoMode}
}

// Execute runs a catalog agent on the given input. An empty model uses
// the client's default.
func (r *Runner) Execute(ctx context.Context, agentID, model, input string) (*models.AgentResult, error) {
	agent, err := Lookup(agentID)
	if err != nil {
		return nil, err
	}
	if agent.Kind == KindRAG {
		return nil, fmt.Errorf("agent %s requires the document Q&A endpoint", agentID)
	}
	return r.ExecuteRole(ctx, agentID, models.NodeType(agent.Kind), model, input)
}

// ExecuteRole runs an LLM role directly. The workflow engine uses this
// for agent nodes, where the role comes from the node type rather than
// a catalog ID.
func (r *Runner) ExecuteRole(ctx context.Context, agentID string, kind models.NodeType, model, input string) (*models.AgentResult, error) {
	if !kind.IsAgentNode() {
		return nil, fmt.Errorf("not an agent role: %s", kind)
	}
	if model == "" {
		model = r.llm.DefaultModel()
	}

	if r.demoMode {
		return demoResult(agentID, kind, model, input), nil
	}

	start := time.Now()
	result, err := r.llm.Chat(ctx, model, []models.ChatMessage{
		{Role: "system", Content: SystemPrompt(kind)},
		{Role: "user", Content: input},
	})
	if err != nil {
		// Ollama down means demo output, not a failed run. Any other
		// error (bad model, timeout mid-stream) surfaces to the caller.
		if llm.IsUnreachable(err) {
			log.Warn().Str("agent", agentID).Err(err).Msg("⚠️ Ollama not connected, using demo mode")
			return demoResult(agentID, kind, model, input), nil
		}
		return nil, err
	}

	return &models.AgentResult{
		AgentType:  agentID,
		ModelName:  result.Model,
		Output:     result.Content,
		Usage:      result.Usage,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}
