package sessions

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps sessions in process memory, keyed by refresh token.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]Session)}
}

func (r *MemoryRepository) Create(ctx context.Context, s *Session) error {
	stampDefaults(s, time.Now().UTC())
	r.mu.Lock()
	r.sessions[s.RefreshToken] = *s
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[refresh]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	r.mu.Lock()
	delete(r.sessions, refresh)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) DeleteBySub(ctx context.Context, sub string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for tok, s := range r.sessions {
		if s.Sub == sub {
			delete(r.sessions, tok)
			n++
		}
	}
	return n, nil
}
