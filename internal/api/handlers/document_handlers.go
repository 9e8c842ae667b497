package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	pkgmw "github.com/agentdesk/agentdesk/pkg/middleware"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/go-chi/chi/v5"
)

// maxUploadBytes caps a document upload request at 32 MiB.
const maxUploadBytes = 32 << 20

// UploadDocuments ingests one or more text files for RAG querying.
// Multipart form, files under the "files" field.
func (h *Handlers) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart request")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "No files provided")
		return
	}

	userID := pkgmw.GetUserID(r.Context())
	uploaded := make([]map[string]interface{}, 0, len(files))
	totalChunks := 0

	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read "+fh.Filename)
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read "+fh.Filename)
			return
		}

		doc, err := h.RAG.UploadDocument(r.Context(), userID, fh.Filename, fh.Header.Get("Content-Type"), content)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		totalChunks += doc.ChunkCount
		uploaded = append(uploaded, map[string]interface{}{
			"id":           doc.ID,
			"filename":     doc.Filename,
			"size":         doc.FileSize,
			"content_type": doc.ContentType,
			"chunk_count":  doc.ChunkCount,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"message":         fmt.Sprintf("Uploaded %d document(s)", len(files)),
		"collection_name": models.UserCollection(userID),
		"documents":       uploaded,
		"total_chunks":    totalChunks,
	})
}

// ListMyDocuments returns the user's uploaded documents.
func (h *Handlers) ListMyDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.RAG.ListDocuments(r.Context(), pkgmw.GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"documents": docs,
	})
}

type documentQueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// QueryDocuments answers a question against the user's documents.
func (h *Handlers) QueryDocuments(w http.ResponseWriter, r *http.Request) {
	var req documentQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := h.RAG.Query(r.Context(), pkgmw.GetUserID(r.Context()), req.Query, req.TopK)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"result": result,
	})
}

// DeleteDocument removes a document and its indexed chunks.
func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := h.RAG.DeleteDocument(r.Context(), pkgmw.GetUserID(r.Context()), chi.URLParam(r, "documentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Document deleted",
	})
}
