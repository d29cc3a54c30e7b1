package users

import (
	"context"
	"time"

	"github.com/quillpad/quillpad/internal/models"
)

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertFromClaims creates or updates a user using OIDC claims map. A
// verified email claim marks the user verified.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if sub == "" {
		return nil, nil
	}
	if name == "" {
		name, _ = claims["preferred_username"].(string)
	}
	u := &models.User{
		Sub:   sub,
		Email: email,
		Name:  name,
	}
	if v, _ := claims["email_verified"].(bool); v {
		now := time.Now().UTC()
		u.VerifiedAt = &now
	}
	return s.repo.UpsertBySub(ctx, u)
}

func (s *Service) Create(ctx context.Context, u *models.User) error {
	return s.repo.Create(ctx, u)
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *Service) SetPassword(ctx context.Context, sub, hash string) error {
	return s.repo.SetPassword(ctx, sub, hash)
}

func (s *Service) MarkVerified(ctx context.Context, sub string) error {
	return s.repo.MarkVerified(ctx, sub, time.Now())
}
