// Package identity implements sign-up, sign-in, password reset, sign-out and
// session resolution on top of a pluggable credential Provider.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quillpad/quillpad/internal/models"
	"github.com/quillpad/quillpad/internal/sessions"
	"github.com/quillpad/quillpad/internal/tokens"
	"github.com/quillpad/quillpad/internal/users"
	"github.com/quillpad/quillpad/pkg/metrics"
	"github.com/quillpad/quillpad/pkg/middleware"
	"golang.org/x/sync/singleflight"
)

// User-facing errors. Their messages are rendered as-is by the auth pages.
var (
	ErrPasswordMismatch   = errors.New("Passwords do not match")
	ErrEmailRequired      = errors.New("Email is required")
	ErrWeakPassword       = errors.New("Password should be at least 6 characters")
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("Email not confirmed")
	ErrEmailTaken         = errors.New("User already registered")
	ErrInvalidToken       = errors.New("Link is invalid or has expired")
	ErrUnsupported        = errors.New("Not supported by the configured identity provider")
)

const MinPasswordLength = 6

// Provider authenticates credentials against a user directory.
type Provider interface {
	SignUp(ctx context.Context, email, password string) error
	SignIn(ctx context.Context, email, password string) (*models.User, error)
	// SendPasswordReset succeeds silently for unknown emails.
	SendPasswordReset(ctx context.Context, email string) error
}

// Confirmer is implemented by providers that handle email links themselves.
// ResetPassword returns the subject whose password changed.
type Confirmer interface {
	VerifyEmail(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, newPassword string) (string, error)
}

// Session is a resolved browser or API session.
type Session struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	// Refreshed is set when AccessToken was minted from the refresh token.
	Refreshed bool
}

type Service struct {
	provider   Provider
	users      *users.Service
	sessions   *sessions.Service
	blacklist  sessions.Blacklist
	issuer     *tokens.Issuer
	refreshTTL time.Duration
	group      singleflight.Group
}

func NewService(p Provider, u *users.Service, s *sessions.Service, bl sessions.Blacklist, iss *tokens.Issuer, refreshTTL time.Duration) *Service {
	if bl == nil {
		bl = sessions.NewMemoryBlacklist()
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Service{provider: p, users: u, sessions: s, blacklist: bl, issuer: iss, refreshTTL: refreshTTL}
}

func (s *Service) AccessTTL() time.Duration  { return s.issuer.TTL() }
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// SignUp registers a new account. Mismatched passwords are rejected before
// the provider is called.
func (s *Service) SignUp(ctx context.Context, email, password, confirm string) (err error) {
	defer func() { metrics.AuthEvents.WithLabelValues("signup", metrics.Outcome(err)).Inc() }()
	if password != confirm {
		return ErrPasswordMismatch
	}
	email = users.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return s.provider.SignUp(ctx, email, password)
}

// SignIn authenticates and opens a refresh session plus an access token.
func (s *Service) SignIn(ctx context.Context, email, password string) (sess *Session, err error) {
	defer func() { metrics.AuthEvents.WithLabelValues("signin", metrics.Outcome(err)).Inc() }()
	email = users.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sessions.CreateSession(ctx, u.Sub, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	access, err := s.issuer.Generate(u)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	return &Session{User: u, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) SendPasswordReset(ctx context.Context, email string) (err error) {
	defer func() { metrics.AuthEvents.WithLabelValues("reset", metrics.Outcome(err)).Inc() }()
	email = users.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	return s.provider.SendPasswordReset(ctx, email)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (err error) {
	defer func() { metrics.AuthEvents.WithLabelValues("verify", metrics.Outcome(err)).Inc() }()
	c, ok := s.provider.(Confirmer)
	if !ok {
		return ErrUnsupported
	}
	return c.VerifyEmail(ctx, token)
}

// ResetPassword completes a reset started by SendPasswordReset and signs the
// user out of every other session.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) (err error) {
	defer func() { metrics.AuthEvents.WithLabelValues("reset_confirm", metrics.Outcome(err)).Inc() }()
	c, ok := s.provider.(Confirmer)
	if !ok {
		return ErrUnsupported
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	sub, err := c.ResetPassword(ctx, token, password)
	if err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAll(ctx, sub); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// SignOut revokes the access token for the rest of its lifetime and drops
// the refresh session. Either token may be empty.
func (s *Service) SignOut(ctx context.Context, access, refresh string) (err error) {
	defer func() { metrics.AuthEvents.WithLabelValues("signout", metrics.Outcome(err)).Inc() }()
	if access != "" {
		if claims, perr := s.issuer.Parse(access); perr == nil {
			if err := s.blacklist.Add(ctx, access, claims.Remaining(time.Now())); err != nil {
				return fmt.Errorf("blacklist access token: %w", err)
			}
		}
	}
	if err := s.sessions.DeleteRefresh(ctx, refresh); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

const resolveTimeout = 10 * time.Second

// CurrentUser resolves the session carried by a cookie pair. It returns
// (nil, nil) when there is no usable session. Concurrent calls for the same
// pair share one resolution.
func (s *Service) CurrentUser(ctx context.Context, access, refresh string) (*Session, error) {
	if access == "" && refresh == "" {
		return nil, nil
	}
	v, err, _ := s.group.Do(access+"\x00"+refresh, func() (interface{}, error) {
		// shared by every waiter, so one caller going away must not cancel it
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return s.resolve(rctx, access, refresh)
	})
	if err != nil || v == nil {
		return nil, err
	}
	sess, _ := v.(*Session)
	if sess == nil {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

func (s *Service) resolve(ctx context.Context, access, refresh string) (*Session, error) {
	if access != "" {
		claims, err := s.claims(ctx, access)
		if err == nil {
			u, err := s.users.GetBySub(ctx, claims.Subject)
			if err != nil {
				return nil, err
			}
			if u != nil {
				return &Session{User: u, AccessToken: access, RefreshToken: refresh}, nil
			}
		} else if !errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
	}
	if refresh == "" {
		return nil, nil
	}
	sess, err := s.Refresh(ctx, refresh)
	if errors.Is(err, ErrInvalidToken) {
		return nil, nil
	}
	return sess, err
}

// Refresh mints a new access token from a refresh token.
func (s *Service) Refresh(ctx context.Context, refresh string) (*Session, error) {
	rs, err := s.sessions.ValidateRefresh(ctx, refresh)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		return nil, ErrInvalidToken
	}
	u, err := s.users.GetBySub(ctx, rs.Sub)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidToken
	}
	access, err := s.issuer.Generate(u)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, AccessToken: access, RefreshToken: refresh, Refreshed: true}, nil
}

// claims parses an access token and rejects revoked ones.
func (s *Service) claims(ctx context.Context, access string) (*tokens.Claims, error) {
	claims, err := s.issuer.Parse(access)
	if err != nil {
		return nil, ErrInvalidToken
	}
	revoked, err := s.blacklist.Contains(ctx, access)
	if err != nil {
		return nil, fmt.Errorf("blacklist lookup: %w", err)
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify lets the service back middleware.AuthMiddleware for Bearer tokens.
func (s *Service) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	claims, err := s.claims(ctx, strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return claimsToken{claims}, nil
}

type claimsToken struct{ c *tokens.Claims }

func (t claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.c)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
