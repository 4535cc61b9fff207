package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator resolves a bearer token to the id of the calling user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// JWTAuthenticator accepts HS256 tokens whose subject is the user id.
type JWTAuthenticator struct {
	secret []byte
	now    func() time.Time
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), now: time.Now}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// IssueToken signs a token for userID valid for ttl. Used by the CLI and tests.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return t.SignedString([]byte(secret))
}

const (
	// LocalDevAPIKey is the hardcoded key accepted in local development only
	LocalDevAPIKey = "sk_local_saycal_dev_key"
	// LocalDevUserID is the user the dev key resolves to
	LocalDevUserID = "saycal-dev"
)

// MockAuthenticator provides a simple authenticator for local development.
// It recognizes LocalDevAPIKey and otherwise defers to next, when set.
type MockAuthenticator struct {
	next Authenticator
}

func NewMockAuthenticator(next Authenticator) *MockAuthenticator {
	return &MockAuthenticator{next: next}
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	if token == LocalDevAPIKey {
		return LocalDevUserID, nil
	}
	if m.next != nil {
		return m.next.Authenticate(ctx, token)
	}
	return "", errors.New("invalid API key for local development")
}

// New picks the authenticator for the deployment: the dev key is only honoured in dev mode.
func New(jwtSecret string, devMode bool) (Authenticator, error) {
	var jwtAuth Authenticator
	if jwtSecret != "" {
		jwtAuth = NewJWTAuthenticator(jwtSecret)
	}
	if devMode {
		return NewMockAuthenticator(jwtAuth), nil
	}
	if jwtAuth == nil {
		return nil, errors.New("AUTH_JWT_SECRET is required outside dev mode")
	}
	return jwtAuth, nil
}
