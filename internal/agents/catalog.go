// Package agents implements the pre-built dashboard agents: a fixed
// catalog of business helpers backed by four LLM roles (extractor,
// analyzer, writer, researcher) plus the document Q&A agent served by
// the RAG pipeline.
package agents

import (
	"fmt"
	"sort"

	"github.com/agentdesk/agentdesk/pkg/models"
)

// KindRAG marks the document Q&A agent, which is answered by the RAG
// pipeline instead of a bare LLM call.
const KindRAG = "rag"

// Agent describes one entry in the dashboard catalog.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"` // extractor | analyzer | writer | researcher | rag
}

// catalog maps agent IDs to their LLM role.
var catalog = map[string]Agent{
	"email-summarizer": {
		ID:          "email-summarizer",
		Name:        "Email Summarizer",
		Description: "Analyzes emails and extracts priority, category, sentiment, and action items",
		Kind:        string(models.NodeExtractor),
	},
	"content-generator": {
		ID:          "content-generator",
		Name:        "Content Generator",
		Description: "Writes articles, blog posts, and marketing copy from a brief",
		Kind:        string(models.NodeWriter),
	},
	"data-analyzer": {
		ID:          "data-analyzer",
		Name:        "Data Analyzer",
		Description: "Finds trends, patterns, and recommendations in raw data",
		Kind:        string(models.NodeAnalyzer),
	},
	"code-reviewer": {
		ID:          "code-reviewer",
		Name:        "Code Reviewer",
		Description: "Reviews code and returns a corrected version with a change summary",
		Kind:        string(models.NodeAnalyzer),
	},
	"customer-support": {
		ID:          "customer-support",
		Name:        "Customer Support",
		Description: "Drafts professional responses to customer inquiries",
		Kind:        string(models.NodeWriter),
	},
	"meeting-notes": {
		ID:          "meeting-notes",
		Name:        "Meeting Notes",
		Description: "Extracts decisions, action items, and discussion points from transcripts",
		Kind:        string(models.NodeExtractor),
	},
	"document-qa": {
		ID:          "document-qa",
		Name:        "Document Q&A",
		Description: "Answers questions against your uploaded documents",
		Kind:        KindRAG,
	},
}

// Lookup returns the catalog entry for an agent ID.
func Lookup(agentID string) (Agent, error) {
	a, ok := catalog[agentID]
	if !ok {
		return Agent{}, fmt.Errorf("unknown agent: %s", agentID)
	}
	return a, nil
}

// List returns the full catalog, sorted by ID.
func List() []Agent {
	result := make([]Agent, 0, len(catalog))
	for _, a := range catalog {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
