package repository

import (
	"context"
	"errors"

	"github.com/quillpad/quillpad/internal/models"
)

var (
	ErrNotFound = errors.New("note not found")
)

// Repository persists notes and their attachment rows. Every call except the
// orphan listing is scoped to the owning user's identifier.
type Repository interface {
	// List returns the user's notes newest-first, each joined with its attachments.
	List(ctx context.Context, userID string) ([]*models.Note, error)
	Get(ctx context.Context, userID, id string) (*models.Note, error)
	// Create inserts the note and returns the store-assigned identifier.
	Create(ctx context.Context, n *models.Note) (string, error)
	Update(ctx context.Context, userID, id, title, content string) error
	// Delete removes the note row only; attachment rows are left in place.
	Delete(ctx context.Context, userID, id string) error

	// AddAttachment inserts an attachment row. The parent note must exist and
	// belong to a.UserID, otherwise ErrNotFound is returned.
	AddAttachment(ctx context.Context, a *models.Attachment) (string, error)
	GetAttachment(ctx context.Context, userID, id string) (*models.Attachment, error)
	ListAttachments(ctx context.Context, userID, noteID string) ([]*models.Attachment, error)
	DeleteAttachment(ctx context.Context, userID, id string) error
	// Orphans returns attachment rows whose parent note no longer exists.
	Orphans(ctx context.Context) ([]*models.Attachment, error)
}
