package identity

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTokenStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	tok, err := s.Issue(ctx, PurposeVerify, "sub-1", time.Hour)
	require.NoError(t, err)

	// purposes do not mix
	_, err = s.Consume(ctx, PurposeReset, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	sub, err := s.Consume(ctx, PurposeVerify, tok)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub)

	_, err = s.Consume(ctx, PurposeVerify, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	tok, err = s.Issue(ctx, PurposeReset, "sub-1", time.Minute)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = s.Consume(ctx, PurposeReset, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRedisTokenStore(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	s := NewRedisTokenStore(redis.NewClient(&redis.Options{Addr: m.Addr()}))

	tok, err := s.Issue(ctx, PurposeReset, "sub-2", time.Hour)
	require.NoError(t, err)
	assert.True(t, m.Exists("onetime:reset:"+tok))

	sub, err := s.Consume(ctx, PurposeReset, tok)
	require.NoError(t, err)
	assert.Equal(t, "sub-2", sub)
	assert.False(t, m.Exists("onetime:reset:"+tok))

	_, err = s.Consume(ctx, PurposeReset, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	tok, err = s.Issue(ctx, PurposeVerify, "sub-2", time.Second)
	require.NoError(t, err)
	m.FastForward(2 * time.Second)
	_, err = s.Consume(ctx, PurposeVerify, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewMailer(t *testing.T) {
	_, ok := NewMailer(mailCfg("log")).(LogMailer)
	assert.True(t, ok)
	_, ok = NewMailer(mailCfg("smtp")).(*SMTPMailer)
	assert.True(t, ok)
}

func TestSMTPMailer_RejectsHeaderInjection(t *testing.T) {
	m := NewSMTPMailer(mailCfg("smtp"))
	err := m.Send(context.Background(), "a@x.com\r\nBcc: b@x.com", "hi", "body")
	assert.Error(t, err)
}
