// Package vectorstore holds the per-user document index behind RAG
// queries. The embedded in-memory store serves local installs; pgvector
// backs deployments that already run PostgreSQL.
package vectorstore

import (
	"context"

	"github.com/agentdesk/agentdesk/pkg/models"
)

// Driver is the vector index interface. Collections partition the index
// per user (see models.UserCollection).
type Driver interface {
	Kind() string

	// Upsert inserts or replaces embedded chunks in a collection.
	Upsert(ctx context.Context, collection string, docs []models.VectorDoc) error

	// Search returns the topK most similar chunks by cosine similarity.
	Search(ctx context.Context, collection string, vector []float64, topK int) ([]models.SearchResult, error)

	// Delete removes chunks by ID.
	Delete(ctx context.Context, collection string, ids []string) error

	// DeleteByDocument removes every chunk belonging to a source document.
	DeleteByDocument(ctx context.Context, collection, documentID string) error

	// Count returns the number of chunks in a collection.
	Count(ctx context.Context, collection string) (int, error)

	HealthCheck(ctx context.Context) error
}
