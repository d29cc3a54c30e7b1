package repository

import (
	"context"
	"testing"
	"time"

	"github.com/quillpad/quillpad/internal/models"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepoCRUD(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	n := &models.Note{Title: "Groceries", Content: "Milk, eggs", UserID: "u1"}
	id, err := r.Create(ctx, n)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, id, n.ID)

	got, err := r.Get(ctx, "u1", id)
	require.NoError(t, err)
	require.Equal(t, "Milk, eggs", got.Content)

	// other owners cannot see, update or delete the note
	_, err = r.Get(ctx, "u2", id)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.Update(ctx, "u2", id, "x", "y"), ErrNotFound)
	require.ErrorIs(t, r.Delete(ctx, "u2", id), ErrNotFound)

	require.NoError(t, r.Update(ctx, "u1", id, "Groceries", "Milk"))
	got2, err := r.Get(ctx, "u1", id)
	require.NoError(t, err)
	require.Equal(t, "Milk", got2.Content)

	require.NoError(t, r.Delete(ctx, "u1", id))
	_, err = r.Get(ctx, "u1", id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepo_ListNewestFirstWithAttachments(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	first := &models.Note{Title: "first", UserID: "u1"}
	_, err := r.Create(ctx, first)
	require.NoError(t, err)
	second := &models.Note{Title: "second", UserID: "u1"}
	_, err = r.Create(ctx, second)
	require.NoError(t, err)
	_, err = r.Create(ctx, &models.Note{Title: "someone else", UserID: "u2"})
	require.NoError(t, err)

	for _, name := range []string{"a.txt", "b.txt"} {
		_, err := r.AddAttachment(ctx, &models.Attachment{NoteID: first.ID, FileName: name, UserID: "u1", Path: name})
		require.NoError(t, err)
	}

	list, err := r.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "second", list[0].Title)
	require.Equal(t, "first", list[1].Title)
	require.Empty(t, list[0].Attachments)
	require.Len(t, list[1].Attachments, 2)
	require.Equal(t, "a.txt", list[1].Attachments[0].FileName)
	require.Equal(t, "b.txt", list[1].Attachments[1].FileName)
}

func TestMemoryRepo_AttachmentRequiresOwnedParent(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	_, err := r.AddAttachment(ctx, &models.Attachment{NoteID: "missing", UserID: "u1"})
	require.ErrorIs(t, err, ErrNotFound)

	n := &models.Note{Title: "t", UserID: "u1"}
	_, err = r.Create(ctx, n)
	require.NoError(t, err)
	_, err = r.AddAttachment(ctx, &models.Attachment{NoteID: n.ID, UserID: "u2"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepo_DeleteLeavesAttachmentRows(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	n := &models.Note{Title: "t", UserID: "u1"}
	_, err := r.Create(ctx, n)
	require.NoError(t, err)
	aid, err := r.AddAttachment(ctx, &models.Attachment{NoteID: n.ID, FileName: "f.pdf", UserID: "u1", Path: "p"})
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, "u1", n.ID))

	rows, err := r.ListAttachments(ctx, "u1", n.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	orphans, err := r.Orphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.Equal(t, aid, orphans[0].ID)

	require.NoError(t, r.DeleteAttachment(ctx, "u1", aid))
	orphans, err = r.Orphans(ctx)
	require.NoError(t, err)
	require.Empty(t, orphans)
}
