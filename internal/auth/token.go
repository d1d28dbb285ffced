package auth

import (
	"context"
	"errors"
	"os"
)

// ErrUnauthenticated is returned when no bearer token can be produced.
// Operations that hit it fail without retry; token refresh is the
// provider's responsibility.
var ErrUnauthenticated = errors.New("not authenticated")

// TokenSource produces a bearer token for one outbound operation.
// It is called lazily, once per REST call or connection attempt, and
// its result is never cached by the caller.
type TokenSource func(ctx context.Context) (string, error)

// Static returns a TokenSource that always yields the given token.
func Static(token string) TokenSource {
	return func(context.Context) (string, error) {
		if token == "" {
			return "", ErrUnauthenticated
		}
		return token, nil
	}
}

// FromEnv returns a TokenSource that reads the token from the given
// environment variable on every call, so external rotation is picked
// up without a restart.
func FromEnv(key string) TokenSource {
	return func(context.Context) (string, error) {
		token := os.Getenv(key)
		if token == "" {
			return "", ErrUnauthenticated
		}
		return token, nil
	}
}
