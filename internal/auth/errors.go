package auth

import "errors"

var (
	// ErrMissingToken is returned when the request carries no bearer token
	ErrMissingToken = errors.New("missing Authorization header")

	// ErrInvalidToken is returned when the token cannot be verified
	ErrInvalidToken = errors.New("invalid token")
)
