package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quillpad/quillpad/internal/models"
)

type memNote struct {
	note models.Note
	seq  int64
}

type memAttachment struct {
	att models.Attachment
	seq int64
}

// MemoryRepo is an in-memory repository used for development and unit tests.
type MemoryRepo struct {
	mu          sync.RWMutex
	seq         int64
	notes       map[string]*memNote
	attachments map[string]*memAttachment
	now         func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		notes:       make(map[string]*memNote),
		attachments: make(map[string]*memAttachment),
		now:         time.Now,
	}
}

func (m *MemoryRepo) List(ctx context.Context, userID string) ([]*models.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []*memNote
	for _, n := range m.notes {
		if n.note.UserID == userID {
			rows = append(rows, n)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].note.CreatedAt.Equal(rows[j].note.CreatedAt) {
			return rows[i].note.CreatedAt.After(rows[j].note.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]*models.Note, 0, len(rows))
	for _, r := range rows {
		n := r.note
		n.Attachments = m.attachmentsOf(userID, n.ID)
		out = append(out, &n)
	}
	return out, nil
}

func (m *MemoryRepo) Get(ctx context.Context, userID, id string) (*models.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.notes[id]
	if !ok || r.note.UserID != userID {
		return nil, ErrNotFound
	}
	n := r.note
	n.Attachments = m.attachmentsOf(userID, id)
	return &n, nil
}

func (m *MemoryRepo) Create(ctx context.Context, n *models.Note) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	n.ID = uuid.NewString()
	n.CreatedAt = m.now().UTC()
	n.UpdatedAt = n.CreatedAt
	stored := *n
	stored.Attachments = nil
	m.notes[n.ID] = &memNote{note: stored, seq: m.seq}
	return n.ID, nil
}

func (m *MemoryRepo) Update(ctx context.Context, userID, id, title, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.notes[id]
	if !ok || r.note.UserID != userID {
		return ErrNotFound
	}
	r.note.Title = title
	r.note.Content = content
	r.note.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryRepo) Delete(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.notes[id]
	if !ok || r.note.UserID != userID {
		return ErrNotFound
	}
	delete(m.notes, id)
	return nil
}

func (m *MemoryRepo) AddAttachment(ctx context.Context, a *models.Attachment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, ok := m.notes[a.NoteID]
	if !ok || parent.note.UserID != a.UserID {
		return "", ErrNotFound
	}
	m.seq++
	a.ID = uuid.NewString()
	a.CreatedAt = m.now().UTC()
	m.attachments[a.ID] = &memAttachment{att: *a, seq: m.seq}
	return a.ID, nil
}

func (m *MemoryRepo) GetAttachment(ctx context.Context, userID, id string) (*models.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.attachments[id]
	if !ok || r.att.UserID != userID {
		return nil, ErrNotFound
	}
	a := r.att
	return &a, nil
}

func (m *MemoryRepo) ListAttachments(ctx context.Context, userID, noteID string) ([]*models.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attachmentsOf(userID, noteID), nil
}

func (m *MemoryRepo) DeleteAttachment(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.attachments[id]
	if !ok || r.att.UserID != userID {
		return ErrNotFound
	}
	delete(m.attachments, id)
	return nil
}

func (m *MemoryRepo) Orphans(ctx context.Context) ([]*models.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []*memAttachment
	for _, r := range m.attachments {
		if _, ok := m.notes[r.att.NoteID]; !ok {
			rows = append(rows, r)
		}
	}
	return sortAttachments(rows), nil
}

// attachmentsOf returns copies in insertion order; caller holds the lock.
func (m *MemoryRepo) attachmentsOf(userID, noteID string) []*models.Attachment {
	var rows []*memAttachment
	for _, r := range m.attachments {
		if r.att.NoteID == noteID && r.att.UserID == userID {
			rows = append(rows, r)
		}
	}
	return sortAttachments(rows)
}

func sortAttachments(rows []*memAttachment) []*models.Attachment {
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]*models.Attachment, 0, len(rows))
	for _, r := range rows {
		a := r.att
		out = append(out, &a)
	}
	return out
}
