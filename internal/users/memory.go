package users

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quillpad/quillpad/internal/models"
)

// MemoryUserRepository keeps users in process memory.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	bySub map[string]*models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{bySub: make(map[string]*models.User)}
}

func (r *MemoryUserRepository) Create(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.Email = NormalizeEmail(u.Email)
	if _, ok := r.bySub[u.Sub]; ok || r.emailTaken(u.Email, "") {
		return ErrEmailTaken
	}
	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now
	c := *u
	r.bySub[u.Sub] = &c
	return nil
}

func (r *MemoryUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := NormalizeEmail(u.Email)
	if r.emailTaken(email, u.Sub) {
		return nil, ErrEmailTaken
	}
	now := time.Now().UTC()
	cur, ok := r.bySub[u.Sub]
	if !ok {
		cur = &models.User{ID: uuid.NewString(), Sub: u.Sub, CreatedAt: now}
		r.bySub[u.Sub] = cur
	}
	cur.Email = email
	cur.Name = u.Name
	if u.VerifiedAt != nil {
		cur.VerifiedAt = u.VerifiedAt
	}
	cur.UpdatedAt = now
	c := *cur
	return &c, nil
}

func (r *MemoryUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.bySub[sub]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.bySub {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryUserRepository) SetPassword(ctx context.Context, sub, hash string) error {
	return r.mutate(sub, func(u *models.User) { u.PasswordHash = hash })
}

func (r *MemoryUserRepository) MarkVerified(ctx context.Context, sub string, at time.Time) error {
	at = at.UTC()
	return r.mutate(sub, func(u *models.User) { u.VerifiedAt = &at })
}

func (r *MemoryUserRepository) mutate(sub string, fn func(*models.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.bySub[sub]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// emailTaken reports whether another subject owns email; caller holds the lock.
func (r *MemoryUserRepository) emailTaken(email, exceptSub string) bool {
	for sub, u := range r.bySub {
		if sub != exceptSub && u.Email == email {
			return true
		}
	}
	return false
}
