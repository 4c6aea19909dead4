// Package auth validates the bearer tokens that scope history to an owner.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Access tokens are HS256 JWTs issued by the account service sharing the
// signing key. The subject claim is the history owner.

// DefaultAccessTokenExpiry is the lifetime of tokens minted by
// GenerateAccessToken.
const DefaultAccessTokenExpiry = 1 * time.Hour

// Predefined JWT errors.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrSubjectRequired    = errors.New("token subject is required")
)

// Claims are the claims carried by access tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	expiry     time.Duration
	now        func() time.Time
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the shared HMAC secret.
	SigningKey string

	// Issuer and Audience are checked when non-empty.
	Issuer   string
	Audience string

	// Expiry defaults to DefaultAccessTokenExpiry.
	Expiry time.Duration

	Now func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultAccessTokenExpiry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		expiry:     cfg.Expiry,
		now:        cfg.Now,
	}
}

// GenerateAccessToken signs a token for subject.
func (s *JWTService) GenerateAccessToken(subject string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, ErrSubjectRequired
	}

	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateAccessToken validates a token and returns its subject.
func (s *JWTService) ValidateAccessToken(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrAccessTokenExpired
		}
		return "", fmt.Errorf("%w: %s", ErrInvalidAccessToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidAccessToken
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: %w", ErrInvalidAccessToken, ErrSubjectRequired)
	}

	return claims.Subject, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
