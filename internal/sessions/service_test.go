package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAndValidateSession(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	r, err := svc.CreateSession(ctx, "sub-1", time.Hour)
	require.NoError(t, err)
	require.Len(t, r, 64)

	sess, err := svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "sub-1", sess.Sub)

	require.NoError(t, svc.DeleteRefresh(ctx, r))
	sess2, err := svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.Nil(t, sess2)
}

func TestValidateRefresh_ExpiredIsRemoved(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	ctx := context.Background()

	r, err := svc.CreateSession(ctx, "sub-1", time.Minute)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	sess, err := svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.Nil(t, sess)

	stored, err := repo.GetByRefresh(ctx, r)
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestValidateRefresh_Empty(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	sess, err := svc.ValidateRefresh(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, sess)
	require.NoError(t, svc.DeleteRefresh(context.Background(), ""))
}

func TestRevokeAll(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	laptop, err := svc.CreateSession(ctx, "alice", time.Hour)
	require.NoError(t, err)
	phone, err := svc.CreateSession(ctx, "alice", time.Hour)
	require.NoError(t, err)
	other, err := svc.CreateSession(ctx, "bob", time.Hour)
	require.NoError(t, err)

	n, err := svc.RevokeAll(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, r := range []string{laptop, phone} {
		sess, err := svc.ValidateRefresh(ctx, r)
		require.NoError(t, err)
		require.Nil(t, sess)
	}
	sess, err := svc.ValidateRefresh(ctx, other)
	require.NoError(t, err)
	require.NotNil(t, sess)

	n, err = svc.RevokeAll(ctx, "")
	require.NoError(t, err)
	require.Zero(t, n)
}
