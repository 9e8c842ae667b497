package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// CustomClaims carries the user ID alongside the registered JWT claims.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 session tokens.
type TokenService struct {
	secret []byte
	expiry time.Duration
}

// NewTokenService creates a token service with the given HMAC secret.
func NewTokenService(secret string, expiry time.Duration) *TokenService {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), expiry: expiry}
}

// Expiry returns the configured token lifetime.
func (s *TokenService) Expiry() time.Duration { return s.expiry }

// Generate signs a session token for the user.
func (s *TokenService) Generate(user *models.User) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "agentdesk",
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a token, returning the user ID.
func (s *TokenService) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	return claims.UserID, nil
}

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// JWTProvider authenticates requests carrying a Bearer session token.
type JWTProvider struct {
	tokens *TokenService
	users  store.UserStore
}

// NewJWTProvider creates a JWT auth provider.
func NewJWTProvider(tokens *TokenService, users store.UserStore) *JWTProvider {
	return &JWTProvider{tokens: tokens, users: users}
}

func (p *JWTProvider) Name() string { return "jwt" }

// Authenticate validates a Bearer session token and returns an Identity.
// Returns (nil, nil) when the request carries no token, or when the
// token is an API key (handled by the next provider).
func (p *JWTProvider) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	token := bearerToken(r)
	if token == "" || strings.HasPrefix(token, KeyPrefix) {
		return nil, nil
	}

	userID, err := p.tokens.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	user, err := p.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("unknown user")
	}
	if !user.IsActive {
		return nil, fmt.Errorf("user is deactivated")
	}

	return &Identity{UserID: user.ID, Provider: "jwt", Role: string(user.Role)}, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
