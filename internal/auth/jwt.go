// Package auth guards the mutating API endpoints. The advisor has no user
// accounts; tokens identify operators and automation, issued out of band
// from a shared admin secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidToken is returned for malformed or mis-signed tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for well-formed but expired tokens
	ErrTokenExpired = errors.New("token expired")
	// ErrBadAdminSecret is returned when the admin secret does not match
	ErrBadAdminSecret = errors.New("admin secret mismatch")
)

// OperatorClaims identifies the caller of a mutating endpoint
type OperatorClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Claims is the full JWT payload
type Claims struct {
	OperatorClaims
	jwt.RegisteredClaims
}

// Manager signs and validates operator tokens
type Manager struct {
	secret        []byte
	tokenDuration time.Duration
}

// NewManager creates a token manager. Duration zero defaults to 24h;
// negative durations issue already-expired tokens.
func NewManager(secret string, tokenDuration time.Duration) *Manager {
	if tokenDuration == 0 {
		tokenDuration = 24 * time.Hour
	}
	return &Manager{
		secret:        []byte(secret),
		tokenDuration: tokenDuration,
	}
}

// GenerateToken issues a signed operator token
func (m *Manager) GenerateToken(claims OperatorClaims) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OperatorClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "futures-advisor",
			Audience:  []string{"futures-advisor-api"},
		},
	})

	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, nil
}

// ValidateToken validates a token and returns the operator claims
func (m *Manager) ValidateToken(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &claims.OperatorClaims, nil
}

// TokenDuration returns the configured token lifetime
func (m *Manager) TokenDuration() time.Duration {
	return m.tokenDuration
}

// HashAdminSecret hashes the admin secret for storage in config
func HashAdminSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin secret: %w", err)
	}
	return string(bytes), nil
}

// VerifyAdminSecret checks a presented secret against the stored hash
func VerifyAdminSecret(hash, secret string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return ErrBadAdminSecret
	}
	return nil
}
