package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quillpad/quillpad/internal/models"
	"github.com/quillpad/quillpad/internal/users"
	"github.com/quillpad/quillpad/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

const (
	VerifyTokenTTL = 24 * time.Hour
	ResetTokenTTL  = time.Hour
)

// LocalProvider keeps credentials in the user store as bcrypt hashes and
// confirms email ownership with one-time links.
type LocalProvider struct {
	users   *users.Service
	tokens  TokenStore
	mailer  Mailer
	baseURL string
	cost    int
}

func NewLocalProvider(u *users.Service, ts TokenStore, m Mailer, publicBaseURL string) *LocalProvider {
	if ts == nil {
		ts = NewMemoryTokenStore()
	}
	if m == nil {
		m = LogMailer{}
	}
	return &LocalProvider{
		users:   u,
		tokens:  ts,
		mailer:  m,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		cost:    bcrypt.DefaultCost,
	}
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) error {
	existing, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		Sub:          "local-" + uuid.NewString(),
		Email:        email,
		Name:         email,
		PasswordHash: string(hash),
	}
	if err := p.users.Create(ctx, u); err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			return ErrEmailTaken
		}
		return err
	}
	return p.sendLink(ctx, u, PurposeVerify, VerifyTokenTTL, "/verify",
		"Confirm your email",
		"Follow this link to confirm your email address:")
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	u, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Verified() {
		return nil, ErrEmailNotConfirmed
	}
	return u, nil
}

func (p *LocalProvider) SendPasswordReset(ctx context.Context, email string) error {
	u, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		logger.Debugf("password reset requested for unknown email")
		return nil
	}
	return p.sendLink(ctx, u, PurposeReset, ResetTokenTTL, "/reset-password/confirm",
		"Reset your password",
		"Follow this link to choose a new password:")
}

func (p *LocalProvider) VerifyEmail(ctx context.Context, token string) error {
	sub, err := p.tokens.Consume(ctx, PurposeVerify, token)
	if err != nil {
		return err
	}
	if err := p.users.MarkVerified(ctx, sub); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return nil
}

// ResetPassword also marks the email verified, since the link proves the
// user can read mail sent to it.
func (p *LocalProvider) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	sub, err := p.tokens.Consume(ctx, PurposeReset, token)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := p.users.SetPassword(ctx, sub, string(hash)); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}
	return sub, p.users.MarkVerified(ctx, sub)
}

func (p *LocalProvider) sendLink(ctx context.Context, u *models.User, purpose Purpose, ttl time.Duration, path, subject, intro string) error {
	tok, err := p.tokens.Issue(ctx, purpose, u.Sub, ttl)
	if err != nil {
		return fmt.Errorf("issue %s token: %w", purpose, err)
	}
	link := p.baseURL + path + "?token=" + url.QueryEscape(tok)
	body := intro + "\n\n" + link + "\n\nThe link expires in " + ttl.String() + ".\n"
	if err := p.mailer.Send(ctx, u.Email, subject, body); err != nil {
		return fmt.Errorf("send %s mail: %w", purpose, err)
	}
	return nil
}
