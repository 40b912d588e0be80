package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrMissingToken is returned when no usable bearer token is present.
var ErrMissingToken = errors.New("missing bearer token")

// ExtractToken extracts Bearer token from Authorization header.
func ExtractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid Authorization header format")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
