package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/quillpad/quillpad/internal/inflight"
	"github.com/quillpad/quillpad/internal/models"
	"github.com/quillpad/quillpad/internal/notes/repository"
	"github.com/quillpad/quillpad/internal/storage"
	"github.com/quillpad/quillpad/pkg/logger"
	"github.com/quillpad/quillpad/pkg/metrics"
)

var (
	ErrTitleRequired  = errors.New("Title is required")
	ErrSaveInProgress = errors.New("a save for this account is already in progress")
	ErrNoOwner        = errors.New("no authenticated owner")
	ErrNotFound       = repository.ErrNotFound
)

const (
	DefaultSignedURLTTL = 5 * time.Minute
	defaultContentType  = "application/octet-stream"
	pathAttempts        = 3
)

// EditSession identifies the note being edited. The zero value means the save
// creates a new note.
type EditSession struct {
	NoteID string
}

func (e EditSession) Editing() bool { return e.NoteID != "" }

// Upload describes one selected file. Open is called once, right before the
// object is written.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

type SaveResult struct {
	Note        *models.Note
	Created     bool
	Attachments []*models.Attachment
}

type PreviewKind string

const (
	PreviewImage    PreviewKind = "image"
	PreviewPDF      PreviewKind = "pdf"
	PreviewDownload PreviewKind = "download"
)

// Preview is what the attachment viewer renders.
type Preview struct {
	Kind       PreviewKind
	URL        string
	Attachment *models.Attachment
}

// SaveError reports the stage a save failed in. The work done earlier in the
// same call has already been undone when it is returned.
type SaveError struct {
	Stage string
	Err   error
}

func (e *SaveError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *SaveError) Unwrap() error { return e.Err }

// Service implements the note operations used by the web handlers and the
// JSON API.
type Service struct {
	repo         repository.Repository
	store        storage.ObjectStore
	guard        inflight.Guard
	signedURLTTL time.Duration
	now          func() time.Time
}

func New(repo repository.Repository, store storage.ObjectStore, guard inflight.Guard, signedURLTTL time.Duration) *Service {
	if guard == nil {
		guard = inflight.NewMemoryGuard()
	}
	if signedURLTTL <= 0 {
		signedURLTTL = DefaultSignedURLTTL
	}
	return &Service{repo: repo, store: store, guard: guard, signedURLTTL: signedURLTTL, now: time.Now}
}

// List returns the owner's notes newest-first with their attachments.
func (s *Service) List(ctx context.Context, owner string) ([]*models.Note, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	return s.repo.List(ctx, owner)
}

func (s *Service) Get(ctx context.Context, owner, id string) (*models.Note, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	return s.repo.Get(ctx, owner, id)
}

// Save creates or updates a note and stores every upload in order. On any
// failure the objects and rows written by this call are removed again, a note
// created by this call is deleted and an edited note gets its previous title
// and content back.
func (s *Service) Save(ctx context.Context, owner string, edit EditSession, title, content string, uploads []Upload) (*SaveResult, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if owner == "" {
		return nil, ErrNoOwner
	}

	release, err := s.guard.Acquire(ctx, "note-save:"+owner)
	if err != nil {
		if errors.Is(err, inflight.ErrBusy) {
			return nil, ErrSaveInProgress
		}
		return nil, fmt.Errorf("acquire save guard: %w", err)
	}
	defer release()

	mode := "create"
	res := &SaveResult{}
	undo := &compensation{}
	if edit.Editing() {
		mode = "update"
		prev, err := s.repo.Get(ctx, owner, edit.NoteID)
		if err != nil {
			return nil, s.fail(ctx, owner, undo, "update", err)
		}
		if err := s.repo.Update(ctx, owner, edit.NoteID, title, content); err != nil {
			return nil, s.fail(ctx, owner, undo, "update", err)
		}
		undo.restore = &models.Note{ID: prev.ID, Title: prev.Title, Content: prev.Content}
		res.Note = &models.Note{ID: edit.NoteID, Title: title, Content: content, UserID: owner}
	} else {
		n := &models.Note{Title: title, Content: content, UserID: owner}
		id, err := s.repo.Create(ctx, n)
		if err != nil {
			return nil, s.fail(ctx, owner, undo, "create", err)
		}
		undo.noteID = id
		res.Note = n
		res.Created = true
	}

	for _, u := range uploads {
		key, err := s.upload(ctx, u)
		if err != nil {
			return nil, s.fail(ctx, owner, undo, "upload", fmt.Errorf("%s: %w", u.Name, err))
		}
		undo.objects = append(undo.objects, key)
		metrics.AttachmentsUploaded.Inc()

		a := &models.Attachment{
			NoteID:   res.Note.ID,
			FileName: u.Name,
			FileType: contentType(u),
			FileSize: u.Size,
			Path:     key,
			UserID:   owner,
		}
		if _, err := s.repo.AddAttachment(ctx, a); err != nil {
			return nil, s.fail(ctx, owner, undo, "attachment", fmt.Errorf("%s: %w", u.Name, err))
		}
		undo.attachments = append(undo.attachments, a.ID)
		res.Attachments = append(res.Attachments, a)
	}

	metrics.NotesSaved.WithLabelValues(mode).Inc()
	return res, nil
}

// upload writes one file under a fresh path, retrying with a new path when the
// generated one is already taken.
func (s *Service) upload(ctx context.Context, u Upload) (string, error) {
	for i := 0; i < pathAttempts; i++ {
		key := storage.NewPath(u.Name, s.now())
		rc, err := u.Open()
		if err != nil {
			return "", err
		}
		err = s.store.Upload(ctx, key, rc, u.Size, contentType(u))
		rc.Close()
		if errors.Is(err, storage.ErrObjectExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return key, nil
	}
	return "", storage.ErrObjectExists
}

type compensation struct {
	noteID      string
	objects     []string
	attachments []string
	// restore holds the title and content an edited note had before the save.
	restore *models.Note
}

func (s *Service) fail(ctx context.Context, owner string, undo *compensation, stage string, err error) error {
	metrics.NoteSaveFailures.WithLabelValues(stage).Inc()
	logger.Errorf("note save failed at %s for %s: %v", stage, owner, err)

	// the request context may be gone; cleanup still has to run
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	for i := len(undo.attachments) - 1; i >= 0; i-- {
		if derr := s.repo.DeleteAttachment(cctx, owner, undo.attachments[i]); derr != nil {
			logger.Warnf("compensation: delete attachment %s: %v", undo.attachments[i], derr)
		}
	}
	for i := len(undo.objects) - 1; i >= 0; i-- {
		if derr := s.store.Remove(cctx, undo.objects[i]); derr != nil {
			logger.Warnf("compensation: remove object %s: %v", undo.objects[i], derr)
		}
	}
	if undo.restore != nil {
		if derr := s.repo.Update(cctx, owner, undo.restore.ID, undo.restore.Title, undo.restore.Content); derr != nil {
			logger.Warnf("compensation: restore note %s: %v", undo.restore.ID, derr)
		}
	}
	if undo.noteID != "" {
		if derr := s.repo.Delete(cctx, owner, undo.noteID); derr != nil {
			logger.Warnf("compensation: delete note %s: %v", undo.noteID, derr)
		}
	}
	return &SaveError{Stage: stage, Err: err}
}

// Delete removes the owner's note. Attachment rows and objects stay behind
// until the orphan sweep.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	if owner == "" {
		return ErrNoOwner
	}
	return s.repo.Delete(ctx, owner, id)
}

// Preview issues a fresh signed URL for the attachment on every call.
func (s *Service) Preview(ctx context.Context, owner, attachmentID string) (*Preview, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	a, err := s.repo.GetAttachment(ctx, owner, attachmentID)
	if err != nil {
		return nil, err
	}
	u, err := s.store.SignedURL(ctx, a.Path, s.signedURLTTL)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", a.Path, err)
	}
	metrics.SignedURLsIssued.Inc()
	return &Preview{Kind: KindOf(a.FileType), URL: u, Attachment: a}, nil
}

// KindOf picks the viewer for a declared MIME type.
func KindOf(fileType string) PreviewKind {
	switch {
	case strings.HasPrefix(fileType, "image/"):
		return PreviewImage
	case fileType == "application/pdf":
		return PreviewPDF
	default:
		return PreviewDownload
	}
}

// Orphans lists attachment rows whose note no longer exists.
func (s *Service) Orphans(ctx context.Context) ([]*models.Attachment, error) {
	return s.repo.Orphans(ctx)
}

// PurgeOrphans removes the object and row of every orphaned attachment and
// returns how many were purged.
func (s *Service) PurgeOrphans(ctx context.Context) (int, error) {
	orphans, err := s.repo.Orphans(ctx)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, a := range orphans {
		if err := s.store.Remove(ctx, a.Path); err != nil {
			return purged, fmt.Errorf("remove object %s: %w", a.Path, err)
		}
		if err := s.repo.DeleteAttachment(ctx, a.UserID, a.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return purged, fmt.Errorf("delete attachment %s: %w", a.ID, err)
		}
		purged++
	}
	return purged, nil
}

func contentType(u Upload) string {
	if u.ContentType == "" {
		return defaultContentType
	}
	return u.ContentType
}
