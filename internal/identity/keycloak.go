package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/quillpad/quillpad/internal/config"
	"github.com/quillpad/quillpad/internal/models"
	"github.com/quillpad/quillpad/internal/oidc"
	"github.com/quillpad/quillpad/internal/users"
	"github.com/quillpad/quillpad/pkg/logger"
)

// KeycloakProvider signs users in with the realm's password grant and uses
// the admin REST API to register accounts and send the realm's own
// verification and reset emails.
type KeycloakProvider struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
	verifier     oidc.TokenVerifier
	users        *users.Service

	mu          sync.Mutex
	adminToken  string
	adminExpiry time.Time
}

func NewKeycloakProvider(cfg config.KeycloakConfig, publicBaseURL string, ver oidc.TokenVerifier, u *users.Service) *KeycloakProvider {
	return &KeycloakProvider{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		realm:        cfg.Realm,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  strings.TrimRight(publicBaseURL, "/") + "/signin",
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		verifier:     ver,
		users:        u,
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	IDToken          string `json:"id_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (p *KeycloakProvider) tokenURL() string {
	return p.baseURL + "/realms/" + p.realm + "/protocol/openid-connect/token"
}

func (p *KeycloakProvider) requestToken(ctx context.Context, form url.Values) (*tokenResponse, int, error) {
	form.Set("client_id", p.clientID)
	if p.clientSecret != "" {
		form.Set("client_secret", p.clientSecret)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode token response: %w", err)
	}
	return &tr, resp.StatusCode, nil
}

func (p *KeycloakProvider) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	tr, status, err := p.requestToken(ctx, url.Values{
		"grant_type": {"password"},
		"username":   {email},
		"password":   {password},
		"scope":      {"openid email profile"},
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		if strings.Contains(tr.ErrorDescription, "not fully set up") {
			return nil, ErrEmailNotConfirmed
		}
		if tr.Error == "invalid_grant" {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("token endpoint returned %d: %s %s", status, tr.Error, tr.ErrorDescription)
	}
	idt, err := p.verifier.Verify(ctx, tr.IDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	var claims map[string]interface{}
	if err := idt.Claims(&claims); err != nil {
		return nil, fmt.Errorf("id token claims: %w", err)
	}
	if v, ok := claims["email_verified"].(bool); ok && !v {
		return nil, ErrEmailNotConfirmed
	}
	u, err := p.users.UpsertFromClaims(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("id token has no subject")
	}
	return u, nil
}

type kcCredential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type kcUser struct {
	ID              string         `json:"id,omitempty"`
	Username        string         `json:"username"`
	Email           string         `json:"email"`
	Enabled         bool           `json:"enabled"`
	EmailVerified   bool           `json:"emailVerified"`
	Credentials     []kcCredential `json:"credentials,omitempty"`
	RequiredActions []string       `json:"requiredActions,omitempty"`
}

func (p *KeycloakProvider) SignUp(ctx context.Context, email, password string) error {
	resp, err := p.doAuthorized(ctx, http.MethodPost, "/users", kcUser{
		Username:        email,
		Email:           email,
		Enabled:         true,
		Credentials:     []kcCredential{{Type: "password", Value: password}},
		RequiredActions: []string{"VERIFY_EMAIL"},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return ErrEmailTaken
	}
	if err := checkResponse(resp, http.StatusCreated); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	id := path.Base(resp.Header.Get("Location"))
	if id == "" || id == "." || id == "/" {
		u, err := p.findUser(ctx, email)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("created user %s not found", email)
		}
		id = u.ID
	}
	return p.executeActions(ctx, id, "VERIFY_EMAIL")
}

func (p *KeycloakProvider) SendPasswordReset(ctx context.Context, email string) error {
	u, err := p.findUser(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		logger.Debugf("password reset requested for unknown email")
		return nil
	}
	return p.executeActions(ctx, u.ID, "UPDATE_PASSWORD")
}

func (p *KeycloakProvider) findUser(ctx context.Context, email string) (*kcUser, error) {
	q := url.Values{"email": {email}, "exact": {"true"}}
	resp, err := p.doAuthorized(ctx, http.MethodGet, "/users?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp, http.StatusOK); err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	var found []kcUser
	if err := json.NewDecoder(resp.Body).Decode(&found); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// executeActions asks Keycloak to email the user a link for the given
// required actions.
func (p *KeycloakProvider) executeActions(ctx context.Context, userID string, actions ...string) error {
	q := url.Values{"client_id": {p.clientID}, "redirect_uri": {p.redirectURI}}
	resp, err := p.doAuthorized(ctx, http.MethodPut, "/users/"+url.PathEscape(userID)+"/execute-actions-email?"+q.Encode(), actions)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp, http.StatusNoContent, http.StatusOK); err != nil {
		return fmt.Errorf("execute actions email: %w", err)
	}
	return nil
}

// adminAccessToken returns a cached client-credentials token, refreshing it
// 30 seconds before it expires.
func (p *KeycloakProvider) adminAccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.adminToken != "" && time.Now().Add(30*time.Second).Before(p.adminExpiry) {
		return p.adminToken, nil
	}
	tr, status, err := p.requestToken(ctx, url.Values{"grant_type": {"client_credentials"}})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("client credentials grant returned %d: %s", status, tr.ErrorDescription)
	}
	p.adminToken = tr.AccessToken
	p.adminExpiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return p.adminToken, nil
}

func (p *KeycloakProvider) doAuthorized(ctx context.Context, method, rel string, body interface{}) (*http.Response, error) {
	tok, err := p.adminAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin token: %w", err)
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+"/admin/realms/"+p.realm+rel, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keycloak %s %s: %w", method, rel, err)
	}
	return resp, nil
}

func checkResponse(resp *http.Response, expected ...int) error {
	for _, code := range expected {
		if resp.StatusCode == code {
			return nil
		}
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}
