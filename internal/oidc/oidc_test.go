package oidc

import (
	"context"
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInsecureVerifier_Claims(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"kc-1","email":"a@example.com","email_verified":true}`))
	tok, err := NewInsecureVerifier().Verify(context.Background(), "e30."+payload+".sig")
	require.NoError(t, err)

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "kc-1", claims.Sub)
	require.True(t, claims.EmailVerified)
}

func TestInsecureVerifier_Malformed(t *testing.T) {
	_, err := NewInsecureVerifier().Verify(context.Background(), "nodots")
	require.Error(t, err)
	_, err = NewInsecureVerifier().Verify(context.Background(), "a.b")
	require.Error(t, err)
	_, err = NewInsecureVerifier().Verify(context.Background(), "a.!!!.c")
	require.Error(t, err)
}

func TestIssuer(t *testing.T) {
	require.Equal(t, "http://kc:8080/realms/quillpad", Issuer("http://kc:8080/", "quillpad"))
}

func TestNewKeycloakVerifier_InsecureFallback(t *testing.T) {
	ctx := context.Background()
	_, err := NewKeycloakVerifier(ctx, "http://127.0.0.1:1", "r", "c", false)
	require.Error(t, err)

	v, err := NewKeycloakVerifier(ctx, "http://127.0.0.1:1", "r", "c", true)
	require.NoError(t, err)
	require.IsType(t, &InsecureVerifier{}, v)
}

func TestInsecureVerifier_Expiry(t *testing.T) {
	v := NewInsecureVerifier()
	v.now = func() time.Time { return time.Unix(2000, 0) }
	token := func(exp int) string {
		payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"kc-1","exp":` + strconv.Itoa(exp) + `}`))
		return "e30." + payload + ".sig"
	}

	_, err := v.Verify(context.Background(), token(1999))
	require.ErrorIs(t, err, ErrTokenExpired)
	_, err = v.Verify(context.Background(), token(2001))
	require.NoError(t, err)
}
