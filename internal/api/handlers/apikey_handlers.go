package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentdesk/agentdesk/internal/auth"
	"github.com/agentdesk/agentdesk/internal/store"
	pkgmw "github.com/agentdesk/agentdesk/pkg/middleware"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type apiKeyCreateRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateAPIKey mints a new API key. The plaintext key is returned in
// this response and never again.
func (h *Handlers) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	userID := pkgmw.GetUserID(r.Context())
	gen, err := auth.GenerateKey(userID, req.Name, req.ExpiresAt)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.Store.CreateAPIKey(r.Context(), gen.Key); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("key_id", gen.Key.ID).Str("user_id", userID).Msg("🔑 API key created")
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         gen.Key.ID,
		"name":       gen.Key.Name,
		"key":        gen.Secret,
		"key_prefix": gen.Key.KeyPrefix,
		"expires_at": gen.Key.ExpiresAt,
		"is_active":  gen.Key.IsActive,
		"created_at": gen.Key.CreatedAt,
	})
}

// ListAPIKeys returns the user's keys. Hashes are never serialized.
func (h *Handlers) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.Store.ListAPIKeys(r.Context(), pkgmw.GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if keys == nil {
		keys = []models.APIKey{}
	}
	respondJSON(w, http.StatusOK, keys)
}

// getOwnedAPIKey fetches a key and verifies ownership.
func (h *Handlers) getOwnedAPIKey(r *http.Request, id string) (*models.APIKey, error) {
	key, err := h.Store.GetAPIKey(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if key.UserID != pkgmw.GetUserID(r.Context()) {
		return nil, &store.ErrNotFound{Entity: "api key", Key: id}
	}
	return key, nil
}

// DeactivateAPIKey disables a key without deleting it.
func (h *Handlers) DeactivateAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.getOwnedAPIKey(r, chi.URLParam(r, "keyID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	key.IsActive = false
	if err := h.Store.UpdateAPIKey(r.Context(), key); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, key)
}

// DeleteAPIKey removes a key permanently.
func (h *Handlers) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.getOwnedAPIKey(r, chi.URLParam(r, "keyID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if err := h.Store.DeleteAPIKey(r.Context(), key.ID); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
