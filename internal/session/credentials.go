package session

import (
	"context"
	"fmt"
	"strings"
)

// CredentialProvider supplies the bearer token for the agent backend.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticCredentials is a fixed token, e.g. from a CLI flag.
type StaticCredentials string

// Token returns the fixed token.
func (s StaticCredentials) Token(context.Context) (string, error) {
	return string(s), nil
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f CredentialFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

func bearerToken(ctx context.Context, creds CredentialProvider) (string, error) {
	if creds == nil {
		return "", ErrMissingCredential
	}
	token, err := creds.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingCredential, err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingCredential
	}
	return token, nil
}

type tokenKey struct{}

// WithToken returns a copy of ctx carrying the caller's bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// ContextCredentials reads the token stored by WithToken, i.e. the one the API
// server authenticated on the inbound request.
type ContextCredentials struct{}

// Token returns the token on ctx, or an empty string.
func (ContextCredentials) Token(ctx context.Context) (string, error) {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token, nil
}
