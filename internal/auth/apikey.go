package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix marks AgentDesk API keys so they can be told apart from
// JWT session tokens in the Authorization header.
const KeyPrefix = "adk_"

// prefixLen is how many characters of the key are stored in plaintext
// for lookup and display ("adk_" plus 7 characters).
const prefixLen = 11

// GeneratedKey is the result of minting a new API key. Plaintext is
// shown to the caller exactly once; only the bcrypt hash is stored.
type GeneratedKey struct {
	Key    *models.APIKey
	Secret string
}

// GenerateKey mints a new API key for a user.
func GenerateKey(userID, name string, expiresAt *time.Time) (*GeneratedKey, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate key material: %w", err)
	}
	secret := KeyPrefix + base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedKey{
		Key: &models.APIKey{
			ID:        uuid.New().String(),
			UserID:    userID,
			Name:      name,
			KeyHash:   string(hash),
			KeyPrefix: secret[:prefixLen],
			ExpiresAt: expiresAt,
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		},
		Secret: secret,
	}, nil
}

// APIKeyProvider authenticates requests carrying an adk_ API key in the
// Authorization: Bearer header or X-API-Key header.
type APIKeyProvider struct {
	store store.Store
}

// NewAPIKeyProvider creates an API key auth provider backed by the store.
func NewAPIKeyProvider(s store.Store) *APIKeyProvider {
	return &APIKeyProvider{store: s}
}

func (p *APIKeyProvider) Name() string { return "apikey" }

// Authenticate validates the API key and returns an Identity.
// Returns (nil, nil) if no API key is present (let next provider try).
func (p *APIKeyProvider) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	secret := extractAPIKey(r)
	if secret == "" {
		return nil, nil
	}
	if len(secret) < prefixLen {
		return nil, fmt.Errorf("malformed API key")
	}

	candidates, err := p.store.FindAPIKeysByPrefix(ctx, secret[:prefixLen])
	if err != nil {
		return nil, fmt.Errorf("key lookup failed: %w", err)
	}

	now := time.Now().UTC()
	for i := range candidates {
		k := &candidates[i]
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(secret)) != nil {
			continue
		}
		if !k.IsActive {
			return nil, fmt.Errorf("API key is deactivated")
		}
		if k.Expired(now) {
			return nil, fmt.Errorf("API key is expired")
		}

		user, err := p.store.GetUser(ctx, k.UserID)
		if err != nil {
			return nil, fmt.Errorf("unknown user")
		}
		if !user.IsActive {
			return nil, fmt.Errorf("user is deactivated")
		}

		// Best-effort usage tracking; don't fail the request over it.
		k.LastUsedAt = &now
		if err := p.store.UpdateAPIKey(ctx, k); err != nil {
			log.Warn().Err(err).Str("key_id", k.ID).Msg("Failed to record API key usage")
		}

		return &Identity{UserID: user.ID, Provider: "apikey", Role: string(user.Role)}, nil
	}

	return nil, fmt.Errorf("invalid API key")
}

func extractAPIKey(r *http.Request) string {
	token := bearerToken(r)
	if len(token) >= len(KeyPrefix) && token[:len(KeyPrefix)] == KeyPrefix {
		return token
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}
