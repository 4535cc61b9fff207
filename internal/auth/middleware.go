package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/paul-bouzian/saycal/internal/model"
)

type ctxKey struct{}

// ExtractBearer extracts the token from the Authorization header.
func ExtractBearer(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", fmt.Errorf("%w: expected 'Bearer <token>'", ErrInvalidToken)
	}
	return parts[1], nil
}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user or model.ErrUnauthenticated.
func UserID(ctx context.Context) (string, error) {
	id, _ := ctx.Value(ctxKey{}).(string)
	if id == "" {
		return "", model.ErrUnauthenticated
	}
	return id, nil
}

// Middleware authenticates every request; onError writes the rejection.
func Middleware(a Authenticator, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := ExtractBearer(r)
			if err != nil {
				onError(w, r, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err))
				return
			}
			userID, err := a.Authenticate(r.Context(), token)
			if err != nil {
				onError(w, r, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
