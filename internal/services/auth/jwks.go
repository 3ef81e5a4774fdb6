package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/killallgit/audiolingu-api/pkg/httpx"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrNoVerifier   = errors.New("no token verifier configured")
)

// DevSubject is the identity the dev token resolves to
const DevSubject = "dev-user-001"

// Claims are the identity provider's JWT claims
type Claims struct {
	Email        string       `json:"email"`
	Role         string       `json:"role"`
	UserMetadata UserMetadata `json:"user_metadata"`

	jwt.RegisteredClaims
}

// UserMetadata carries profile fields some providers put in the token
type UserMetadata struct {
	FullName  string `json:"full_name"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
}

// DisplayName returns the best name the token offers
func (c *Claims) DisplayName() string {
	for _, n := range []string{c.UserMetadata.FullName, c.UserMetadata.Name, c.UserMetadata.FirstName} {
		if n = strings.TrimSpace(n); n != "" {
			return n
		}
	}
	return ""
}

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"` // Key type
	Kid string `json:"kid"` // Key ID
	Use string `json:"use"` // Public key use
	Alg string `json:"alg"` // Algorithm
	Crv string `json:"crv"` // Curve (for EC keys)
	X   string `json:"x"`   // X coordinate (for EC keys)
	Y   string `json:"y"`   // Y coordinate (for EC keys)
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Config selects how tokens are verified. At least one of JWKSURL, Secret
// or DevToken must be set.
type Config struct {
	JWKSURL  string
	Secret   string
	Issuer   string
	DevToken string
	DevEmail string
}

// Service verifies bearer tokens: ES256 against a JWKS endpoint, HS256
// against a shared secret, or a fixed development token.
type Service struct {
	cfg           Config
	client        *http.Client
	keys          map[string]*ecdsa.PublicKey
	keysMutex     sync.RWMutex
	lastFetch     time.Time
	cacheDuration time.Duration
	log           *logger.Logger
}

// NewService creates the verifier and loads the JWKS when one is configured
func NewService(ctx context.Context, cfg Config, log *logger.Logger) (*Service, error) {
	if cfg.JWKSURL == "" && cfg.Secret == "" && cfg.DevToken == "" {
		return nil, ErrNoVerifier
	}
	if log == nil {
		log = logger.Nop()
	}

	service := &Service{
		cfg:           cfg,
		client:        &http.Client{Timeout: 10 * time.Second},
		keys:          make(map[string]*ecdsa.PublicKey),
		cacheDuration: time.Hour,
		log:           log.With("component", "auth"),
	}

	if cfg.JWKSURL != "" {
		if err := service.fetchJWKS(ctx); err != nil {
			return nil, fmt.Errorf("failed to fetch initial JWKS: %w", err)
		}
	}
	if cfg.DevToken != "" {
		service.log.Warn("Development token accepted", "subject", DevSubject)
	}

	return service, nil
}

// fetchJWKS fetches and parses the JWKS from the URL
func (s *Service) fetchJWKS(ctx context.Context) error {
	raw, _, err := httpx.Fetch(ctx, s.client, "jwks", s.cfg.JWKSURL)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	var jwks JWKS
	if err := json.Unmarshal(raw, &jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*ecdsa.PublicKey, len(jwks.Keys))
	for _, jwk := range jwks.Keys {
		if jwk.Kty != "EC" || jwk.Alg != "ES256" {
			continue
		}
		pubKey, err := parseECKey(jwk)
		if err != nil {
			s.log.Warn("Skipping invalid JWK", "kid", jwk.Kid, "error", err)
			continue
		}
		keys[jwk.Kid] = pubKey
	}

	s.keysMutex.Lock()
	s.keys = keys
	s.lastFetch = time.Now()
	s.keysMutex.Unlock()
	return nil
}

// parseECKey converts a JWK to a P-256 public key
func parseECKey(jwk JWK) (*ecdsa.PublicKey, error) {
	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode X coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Y coordinate: %w", err)
	}

	pubKey := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}
	if !pubKey.Curve.IsOnCurve(pubKey.X, pubKey.Y) {
		return nil, fmt.Errorf("point is not on P-256")
	}
	return pubKey, nil
}

// getPublicKey retrieves a public key by kid, refreshing JWKS if necessary
func (s *Service) getPublicKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	s.keysMutex.RLock()
	key, exists := s.keys[kid]
	shouldRefresh := time.Since(s.lastFetch) > s.cacheDuration
	s.keysMutex.RUnlock()

	if !exists || shouldRefresh {
		if err := s.fetchJWKS(ctx); err != nil {
			return nil, fmt.Errorf("failed to refresh JWKS: %w", err)
		}

		s.keysMutex.RLock()
		key, exists = s.keys[kid]
		s.keysMutex.RUnlock()
	}

	if !exists {
		return nil, fmt.Errorf("key with id %s not found", kid)
	}
	return key, nil
}

// ValidateToken verifies a bearer token and returns its claims
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if s.cfg.DevToken != "" &&
		subtle.ConstantTimeCompare([]byte(tokenString), []byte(s.cfg.DevToken)) == 1 {
		return s.DevClaims(), nil
	}

	methods := make([]string, 0, 2)
	if s.cfg.JWKSURL != "" {
		methods = append(methods, jwt.SigningMethodES256.Alg())
	}
	if s.cfg.Secret != "" {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if len(methods) == 0 {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return []byte(s.cfg.Secret), nil
		case *jwt.SigningMethodECDSA:
			kid, ok := token.Header["kid"].(string)
			if !ok {
				return nil, fmt.Errorf("no kid found in token header")
			}
			return s.getPublicKey(ctx, kid)
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		s.log.Debug("Rejected token", "error", err)
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// DevClaims returns fixed claims for the development token
func (s *Service) DevClaims() *Claims {
	email := s.cfg.DevEmail
	if email == "" {
		email = "dev@audiolingu.local"
	}
	now := time.Now()
	return &Claims{
		Email:        email,
		Role:         "authenticated",
		UserMetadata: UserMetadata{FullName: "Dev User"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   DevSubject,
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
}
