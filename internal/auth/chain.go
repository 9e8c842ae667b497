// Package auth provides authentication for the AgentDesk API:
//   - JWTProvider: HS256 session tokens issued at login
//   - APIKeyProvider: long-lived programmatic keys (adk_ prefix)
//
// Providers are walked in order by the ProviderChain until one
// returns an Identity.
package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// Identity is the result of a successful authentication.
type Identity struct {
	UserID   string
	Provider string // "jwt" | "apikey"
	Role     string
}

// Provider authenticates an HTTP request.
//
// Contract:
//   - (*Identity, nil): authenticated, stop walking
//   - (nil, nil): this provider doesn't handle this request, try next
//   - (nil, error): auth attempted but failed, reject immediately
type Provider interface {
	Name() string
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}

// ProviderChain walks registered providers in order until one returns
// an Identity.
type ProviderChain struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewProviderChain creates an empty auth provider chain.
func NewProviderChain() *ProviderChain {
	return &ProviderChain{providers: make([]Provider, 0)}
}

// RegisterProvider adds a provider to the end of the chain.
// Providers are tried in registration order.
func (c *ProviderChain) RegisterProvider(provider Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = append(c.providers, provider)
	log.Info().
		Str("provider", provider.Name()).
		Msg("🔑 Auth provider registered")
}

// Authenticate walks the chain of providers in order.
func (c *ProviderChain) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	c.mu.RLock()
	providers := make([]Provider, len(c.providers))
	copy(providers, c.providers)
	c.mu.RUnlock()

	for _, p := range providers {
		identity, err := p.Authenticate(ctx, r)
		if err != nil {
			// Auth attempted but failed, reject immediately
			log.Debug().
				Str("provider", p.Name()).
				Err(err).
				Msg("Auth provider rejected request")
			return nil, err
		}
		if identity != nil {
			log.Debug().
				Str("provider", p.Name()).
				Str("user_id", identity.UserID).
				Msg("Request authenticated")
			return identity, nil
		}
		// (nil, nil) means this provider doesn't handle this request, try next
	}

	// No provider matched, anonymous request
	return nil, nil
}
