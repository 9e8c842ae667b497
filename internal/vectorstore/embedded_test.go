package vectorstore_test

import (
	"context"
	"testing"

	"github.com/agentdesk/agentdesk/internal/vectorstore"
	"github.com/agentdesk/agentdesk/pkg/models"
)

func seedDocs(t *testing.T, s *vectorstore.EmbeddedStore, collection string) {
	t.Helper()
	docs := []models.VectorDoc{
		{ID: "a1", DocumentID: "doc-a", Content: "alpha", Vector: []float64{1, 0, 0}},
		{ID: "a2", DocumentID: "doc-a", Content: "beta", Vector: []float64{0, 1, 0}},
		{ID: "b1", DocumentID: "doc-b", Content: "gamma", Vector: []float64{0.9, 0.1, 0}},
	}
	if err := s.Upsert(context.Background(), collection, docs); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}

func TestEmbeddedSearchRanksByCosine(t *testing.T) {
	s := vectorstore.NewEmbeddedStore()
	seedDocs(t, s, "user_u1_docs")

	results, err := s.Search(context.Background(), "user_u1_docs", []float64{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Doc.ID != "a1" {
		t.Errorf("top hit = %s, want a1 (exact match)", results[0].Doc.ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by descending score")
	}
	if results[0].Score < 0.999 {
		t.Errorf("identical vector score = %v, want ~1.0", results[0].Score)
	}
}

func TestEmbeddedCollectionsAreIsolated(t *testing.T) {
	s := vectorstore.NewEmbeddedStore()
	seedDocs(t, s, "user_u1_docs")
	seedDocs(t, s, "user_u2_docs")

	results, err := s.Search(context.Background(), "user_u2_docs", []float64{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, r := range results {
		if r.Doc.Collection != "user_u2_docs" {
			t.Errorf("result from collection %q leaked into user_u2_docs search", r.Doc.Collection)
		}
	}

	n, err := s.Count(context.Background(), "user_u1_docs")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count(user_u1_docs) = %d, want 3", n)
	}
}

func TestEmbeddedDeleteByDocument(t *testing.T) {
	s := vectorstore.NewEmbeddedStore()
	seedDocs(t, s, "user_u1_docs")

	if err := s.DeleteByDocument(context.Background(), "user_u1_docs", "doc-a"); err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}

	n, _ := s.Count(context.Background(), "user_u1_docs")
	if n != 1 {
		t.Errorf("Count() after delete = %d, want 1", n)
	}
	results, _ := s.Search(context.Background(), "user_u1_docs", []float64{1, 0, 0}, 10)
	for _, r := range results {
		if r.Doc.DocumentID == "doc-a" {
			t.Errorf("chunk %s from deleted document still indexed", r.Doc.ID)
		}
	}
}

func TestEmbeddedCapacityCap(t *testing.T) {
	s := vectorstore.NewEmbeddedStore(vectorstore.WithMaxVectors(2))

	docs := []models.VectorDoc{
		{ID: "1", Vector: []float64{1, 0}},
		{ID: "2", Vector: []float64{0, 1}},
		{ID: "3", Vector: []float64{1, 1}},
	}
	if err := s.Upsert(context.Background(), "c", docs); err == nil {
		t.Error("Upsert() past capacity should return error")
	}
}
