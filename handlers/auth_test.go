package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUp_PasswordMismatch(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	rw := b.postForm("/signup", url.Values{"email": {"a@x.com"}, "password": {"secret1"}, "confirmPassword": {"secret2"}})
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Contains(t, rw.Body.String(), "Passwords do not match")
	assert.Equal(t, 0, app.mailer.count())

	u, err := app.users.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSignUp_ShowsVerificationPromptAndClearsForm(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	rw := b.postForm("/signup", url.Values{"email": {"a@x.com"}, "password": {"secret1"}, "confirmPassword": {"secret1"}})
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "Please check your email for verification link")
	assert.NotContains(t, rw.Body.String(), `value="a@x.com"`)
	assert.Equal(t, 1, app.mailer.count())

	// unverified accounts cannot sign in yet
	rw = b.postForm("/signin", url.Values{"email": {"a@x.com"}, "password": {"secret1"}})
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
	assert.Contains(t, rw.Body.String(), "Email not confirmed")
}

func TestSessionGuard(t *testing.T) {
	app := newTestApp(t)

	anon := app.browser(t)
	rw := anon.get("/dashboard")
	assert.Equal(t, http.StatusFound, rw.Code)
	assert.Equal(t, "/signin", rw.Header().Get("Location"))

	b := app.signedIn(t, "a@x.com")
	rw = b.get("/dashboard")
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "No notes yet. Create your first note!")

	for _, p := range []string{"/signin", "/signup", "/reset-password"} {
		rw = b.get(p)
		assert.Equal(t, http.StatusFound, rw.Code, p)
		assert.Equal(t, "/dashboard", rw.Header().Get("Location"), p)
	}

	// the index page is public either way
	assert.Equal(t, http.StatusOK, anon.get("/").Code)
	assert.Equal(t, http.StatusOK, b.get("/").Code)
}

func TestSignIn_WrongPassword(t *testing.T) {
	app := newTestApp(t)
	app.signedIn(t, "a@x.com")

	b := app.browser(t)
	rw := b.postForm("/signin", url.Values{"email": {"a@x.com"}, "password": {"nope123"}})
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
	assert.Contains(t, rw.Body.String(), "Invalid login credentials")
	assert.Contains(t, rw.Body.String(), `value="a@x.com"`)
	assert.Empty(t, b.cookies)
}

func TestSessionRefreshRewritesAccessCookie(t *testing.T) {
	app := newTestApp(t)
	b := app.signedIn(t, "a@x.com")
	b.cookies[accessCookie].Value = "expired-or-garbage"

	rw := b.get("/dashboard")
	assert.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, b.cookies, accessCookie)
	assert.NotEqual(t, "expired-or-garbage", b.cookies[accessCookie].Value)
}

func TestSignOut(t *testing.T) {
	app := newTestApp(t)
	b := app.signedIn(t, "a@x.com")
	access := b.cookies[accessCookie].Value

	rw := b.postForm("/signout", nil)
	assert.Equal(t, http.StatusSeeOther, rw.Code)
	assert.Equal(t, "/signin", rw.Header().Get("Location"))
	assert.Empty(t, b.cookies)

	rw = b.get("/dashboard")
	assert.Equal(t, http.StatusFound, rw.Code)

	// the old access token is revoked for the API too
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rw = httptest.NewRecorder()
	app.router.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	app := newTestApp(t)
	app.signedIn(t, "a@x.com")
	b := app.browser(t)

	rw := b.postForm("/reset-password", url.Values{"email": {"a@x.com"}})
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "Password reset link sent to your email")

	link := app.mailer.lastLink(t)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/reset-password/confirm", u.Path)
	token := u.Query().Get("token")

	rw = b.get(link)
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), token)

	rw = b.postForm("/reset-password/confirm", url.Values{"token": {token}, "password": {"brandnew"}, "confirmPassword": {"brandnew"}})
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "Your password has been updated")

	rw = b.postForm("/signin", url.Values{"email": {"a@x.com"}, "password": {"brandnew"}})
	assert.Equal(t, http.StatusSeeOther, rw.Code)
}

func TestPasswordReset_UnknownEmailLooksTheSame(t *testing.T) {
	app := newTestApp(t)
	rw := app.browser(t).postForm("/reset-password", url.Values{"email": {"ghost@x.com"}})
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "Password reset link sent to your email")
	assert.Equal(t, 0, app.mailer.count())
}

func TestVerify_InvalidToken(t *testing.T) {
	app := newTestApp(t)
	rw := app.browser(t).get("/verify?token=nope")
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Contains(t, rw.Body.String(), "Link is invalid or has expired")
}

func TestRefreshEndpoint(t *testing.T) {
	app := newTestApp(t)
	b := app.signedIn(t, "a@x.com")

	body, _ := json.Marshal(map[string]string{"refresh_token": b.cookies[refreshCookie].Value})
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rw := httptest.NewRecorder()
	app.router.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	assert.NotEmpty(t, got["access_token"])
	assert.Equal(t, float64(60), got["expires_in"])

	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader([]byte(`{"refresh_token":"unknown"}`)))
	req.Header.Set("Content-Type", "application/json")
	rw = httptest.NewRecorder()
	app.router.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}
