package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository stores each session as JSON under <prefix><refresh> with
// the session's own TTL. A set under <prefix>sub:<sub> lists the refresh
// tokens of one user so they can all be revoked together.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based session repository. An empty
// prefix becomes "quillpad:session:".
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "quillpad:session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(refresh string) string { return r.prefix + refresh }
func (r *RedisRepository) subKey(sub string) string  { return r.prefix + "sub:" + sub }

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	stampDefaults(s, time.Now().UTC())
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		// Redis rejects non-positive expirations; GetByRefresh filters it anyway
		ttl = time.Second
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(s.RefreshToken), b, ttl)
	pipe.SAdd(ctx, r.subKey(s.Sub), s.RefreshToken)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	// the index lives as long as the longest session it may point to
	cur, err := r.client.TTL(ctx, r.subKey(s.Sub)).Result()
	if err != nil {
		return err
	}
	if cur < ttl {
		return r.client.Expire(ctx, r.subKey(s.Sub), ttl).Err()
	}
	return nil
}

func (r *RedisRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	b, err := r.client.Get(ctx, r.key(refresh)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	if s.Expired(time.Now().UTC()) {
		return nil, r.DeleteByRefresh(ctx, refresh)
	}
	return &s, nil
}

func (r *RedisRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	b, err := r.client.GetDel(ctx, r.key(refresh)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	var s Session
	if json.Unmarshal(b, &s) == nil && s.Sub != "" {
		return r.client.SRem(ctx, r.subKey(s.Sub), refresh).Err()
	}
	return nil
}

func (r *RedisRepository) DeleteBySub(ctx context.Context, sub string) (int, error) {
	tokens, err := r.client.SMembers(ctx, r.subKey(sub)).Result()
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, r.key(t))
	}
	var deleted int64
	if len(keys) > 0 {
		if deleted, err = r.client.Del(ctx, keys...).Result(); err != nil {
			return 0, err
		}
	}
	if err := r.client.Del(ctx, r.subKey(sub)).Err(); err != nil {
		return int(deleted), err
	}
	return int(deleted), nil
}
