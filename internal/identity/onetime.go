package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose scopes a one-time token to a single kind of email link.
type Purpose string

const (
	PurposeVerify Purpose = "verify"
	PurposeReset  Purpose = "reset"
)

// TokenStore hands out one-time tokens bound to a user subject. Consume
// returns ErrInvalidToken for unknown, used or expired tokens.
type TokenStore interface {
	Issue(ctx context.Context, p Purpose, subject string, ttl time.Duration) (string, error)
	Consume(ctx context.Context, p Purpose, token string) (string, error)
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

type memEntry struct {
	subject string
	expires time.Time
}

// MemoryTokenStore keeps tokens in process memory.
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{entries: make(map[string]memEntry), now: time.Now}
}

func (m *MemoryTokenStore) Issue(ctx context.Context, p Purpose, subject string, ttl time.Duration) (string, error) {
	tok, err := newToken()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[string(p)+":"+tok] = memEntry{subject: subject, expires: m.now().Add(ttl)}
	return tok, nil
}

func (m *MemoryTokenStore) Consume(ctx context.Context, p Purpose, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(p) + ":" + token
	e, ok := m.entries[key]
	delete(m.entries, key)
	if !ok || m.now().After(e.expires) {
		return "", ErrInvalidToken
	}
	return e.subject, nil
}

// RedisTokenStore keeps tokens under "onetime:<purpose>:<token>" with TTL and
// consumes them with GETDEL so a link works once across instances.
type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(c *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: c}
}

func (r *RedisTokenStore) Issue(ctx context.Context, p Purpose, subject string, ttl time.Duration) (string, error) {
	tok, err := newToken()
	if err != nil {
		return "", err
	}
	if err := r.client.Set(ctx, "onetime:"+string(p)+":"+tok, subject, ttl).Err(); err != nil {
		return "", err
	}
	return tok, nil
}

func (r *RedisTokenStore) Consume(ctx context.Context, p Purpose, token string) (string, error) {
	sub, err := r.client.GetDel(ctx, "onetime:"+string(p)+":"+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return sub, nil
}
