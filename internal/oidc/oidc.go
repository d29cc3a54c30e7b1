package oidc

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/quillpad/quillpad/pkg/logger"
)

// IDToken is a minimal interface for token payloads that allows extracting claims
// It is satisfied by *oidc.IDToken and by test fakes.
type IDToken interface {
	Claims(v interface{}) error
}

// TokenVerifier checks a raw ID token and returns its payload.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (IDToken, error)
}

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a new OIDC verifier for the given issuer and client ID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{provider: provider, verifier: verifier}, nil
}

// Verify verifies the provided raw ID token using the provided context
func (v *Verifier) Verify(ctx context.Context, raw string) (IDToken, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// Issuer returns the realm issuer URL for a Keycloak base URL.
func Issuer(baseURL, realm string) string {
	return strings.TrimRight(baseURL, "/") + "/realms/" + realm
}

// NewKeycloakVerifier discovers the realm issuer. When discovery fails and
// allowInsecure is set, it falls back to the InsecureVerifier.
func NewKeycloakVerifier(ctx context.Context, baseURL, realm, clientID string, allowInsecure bool) (TokenVerifier, error) {
	ver, err := NewVerifier(ctx, Issuer(baseURL, realm), clientID)
	if err == nil {
		return ver, nil
	}
	if allowInsecure {
		logger.Warnf("OIDC discovery failed (%v); enabling insecure ID token verifier", err)
		return NewInsecureVerifier(), nil
	}
	return nil, err
}
