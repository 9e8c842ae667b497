package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/agentdesk/agentdesk/internal/auth"
	pkgmw "github.com/agentdesk/agentdesk/pkg/middleware"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Password string `json:"password"`
}

// Register creates a new user account.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email, username, and password are required")
		return
	}

	if _, err := h.Store.GetUserByEmail(r.Context(), req.Email); err == nil {
		respondError(w, http.StatusBadRequest, "User with this email or username already exists")
		return
	}
	if _, err := h.Store.GetUserByUsername(r.Context(), req.Username); err == nil {
		respondError(w, http.StatusBadRequest, "User with this email or username already exists")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	user := &models.User{
		ID:             uuid.New().String(),
		Email:          req.Email,
		Username:       req.Username,
		FullName:       req.FullName,
		HashedPassword: hash,
		Role:           models.RoleUser,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.Store.CreateUser(r.Context(), user); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("👤 User registered")
	respondJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies credentials and issues a JWT session token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.Store.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !auth.CheckPassword(user.HashedPassword, req.Password) {
		respondError(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	if !user.IsActive {
		respondError(w, http.StatusBadRequest, "Inactive user")
		return
	}

	token, err := h.Tokens.Generate(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int64(h.Tokens.Expiry().Seconds()),
	})
}

// Me returns the authenticated user's profile.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), pkgmw.GetUserID(r.Context()))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
