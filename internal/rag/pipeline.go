// Package rag implements document upload and retrieval-augmented Q&A.
// Uploaded files are chunked, embedded, and indexed per user; queries
// retrieve the closest chunks and answer through the LLM with the
// retrieved context stuffed into the prompt.
package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentdesk/agentdesk/internal/embeddings"
	"github.com/agentdesk/agentdesk/internal/llm"
	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/internal/vectorstore"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultTopK = 5

const documentQAPrompt = `You are an expert document analyst that answers questions precisely based on uploaded documents.

Analyze the provided context carefully and answer the question accurately.
If the answer requires synthesizing information from multiple sources, do so clearly.
Always cite which source(s) you're using.

Format your response as follows:

DOCUMENT Q&A REPORT

ANSWER
[Clear, comprehensive answer to the question]

KEY INFORMATION
• [Important point 1]
• [Important point 2]
• [Important point 3]

SOURCES REFERENCED
[Which document sections were most relevant]

CONFIDENCE LEVEL
[High/Medium/Low - explain why]

Be thorough but concise.`

// Service ties the document store, embedder, vector index, and LLM
// together.
type Service struct {
	store    store.Store
	embedder embeddings.Embedder
	vectors  vectorstore.Driver
	llm      *llm.Client
	splitter Splitter
}

// NewService creates the document/RAG service with default chunking.
func NewService(s store.Store, emb embeddings.Embedder, vs vectorstore.Driver, client *llm.Client) *Service {
	return &Service{
		store:    s,
		embedder: emb,
		vectors:  vs,
		llm:      client,
		splitter: NewSplitter(0, 0),
	}
}

// UploadDocument chunks, embeds, and indexes one file into the user's
// collection, and records the Document row.
func (s *Service) UploadDocument(ctx context.Context, userID, filename, contentType string, content []byte) (*models.Document, error) {
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document %s is empty", filename)
	}

	doc := &models.Document{
		ID:          uuid.New().String(),
		UserID:      userID,
		Filename:    filename,
		Content:     text,
		ContentType: contentType,
		Collection:  models.UserCollection(userID),
		FileSize:    int64(len(content)),
		UploadedAt:  time.Now().UTC(),
	}

	chunks := s.splitter.Split(text)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", filename, err)
	}

	vdocs := make([]models.VectorDoc, len(chunks))
	for i, c := range chunks {
		vdocs[i] = models.VectorDoc{
			ID:         doc.ID + "_" + strconv.Itoa(c.Index),
			DocumentID: doc.ID,
			Content:    c.Text,
			Vector:     vectors[i],
			Metadata: map[string]string{
				"filename":    filename,
				"chunk_index": strconv.Itoa(c.Index),
			},
		}
	}
	if err := s.vectors.Upsert(ctx, doc.Collection, vdocs); err != nil {
		return nil, fmt.Errorf("index document %s: %w", filename, err)
	}

	doc.ChunkCount = len(chunks)
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	log.Info().
		Str("document_id", doc.ID).
		Str("filename", filename).
		Int("chunks", doc.ChunkCount).
		Msg("📄 Document uploaded and indexed")

	return doc, nil
}

// ListDocuments returns the user's uploaded documents.
func (s *Service) ListDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	return s.store.ListDocuments(ctx, userID)
}

// DeleteDocument removes a document and its indexed chunks. Users can
// only delete their own documents.
func (s *Service) DeleteDocument(ctx context.Context, userID, documentID string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.UserID != userID {
		return &store.ErrNotFound{Entity: "document", Key: documentID}
	}

	if err := s.vectors.DeleteByDocument(ctx, doc.Collection, doc.ID); err != nil {
		return fmt.Errorf("remove document chunks: %w", err)
	}
	return s.store.DeleteDocument(ctx, documentID)
}

// Source identifies a retrieved chunk backing an answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// QueryResult is the outcome of a document Q&A query.
type QueryResult struct {
	Answer      string   `json:"answer"`
	Sources     []Source `json:"sources"`
	SourcesUsed int      `json:"sources_used"`
	Model       string   `json:"model"`
}

// Query answers a question from the user's uploaded documents.
func (s *Service) Query(ctx context.Context, userID, question string, topK int) (*QueryResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required")
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	docs, err := s.store.ListDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents found: upload documents first")
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	collection := models.UserCollection(userID)
	hits, err := s.vectors.Search(ctx, collection, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	if len(hits) == 0 {
		return &QueryResult{
			Answer:  "No relevant documents found. Please upload documents first.",
			Sources: []Source{},
		}, nil
	}

	var contextSB strings.Builder
	sources := make([]Source, len(hits))
	for i, h := range hits {
		fmt.Fprintf(&contextSB, "Source %d:\n%s\n\n", i+1, h.Doc.Content)
		sources[i] = Source{
			DocumentID: h.Doc.DocumentID,
			Filename:   h.Doc.Metadata["filename"],
			Snippet:    snippet(h.Doc.Content, 200),
			Score:      h.Score,
		}
	}

	prompt := fmt.Sprintf("CONTEXT:\n%s\nQUESTION: %s\n\nProvide your answer based only on the context above.",
		contextSB.String(), question)

	result, err := s.llm.Chat(ctx, "", []models.ChatMessage{
		{Role: "system", Content: documentQAPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Int("sources", len(hits)).
		Msg("RAG query answered")

	return &QueryResult{
		Answer:      result.Content,
		Sources:     sources,
		SourcesUsed: len(hits),
		Model:       result.Model,
	}, nil
}

func snippet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
