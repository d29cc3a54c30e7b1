package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quillpad/quillpad/internal/notes/service"
	"github.com/quillpad/quillpad/pkg/logger"
	"github.com/quillpad/quillpad/pkg/middleware"
)

const (
	msgSaved          = "Note saved successfully!"
	msgDeleted        = "Note deleted"
	msgSaveFailed     = "Failed to save note. Please try again."
	msgSaveBusy       = "Your previous save is still in progress. Please wait."
	msgLoadNotes      = "Failed to load notes. Please try again."
	msgLoadNote       = "Failed to load note. Please try again."
	msgDeleteFailed   = "Failed to delete note. Please try again."
	msgLoadAttachment = "Failed to load attachment. Please try again."
	msgTooLarge       = "The selected files are too large."

	multipartMemory = 8 << 20
)

// NotesHandler serves the dashboard, the note form and the attachment viewer.
type NotesHandler struct {
	notes     *service.Service
	maxUpload int64
}

func NewNotesHandler(notes *service.Service, maxUpload int64) *NotesHandler {
	return &NotesHandler{notes: notes, maxUpload: maxUpload}
}

// Register mounts the note pages behind guard.
func (h *NotesHandler) Register(r gin.IRouter, guard gin.HandlerFunc) {
	g := r.Group("/", guard)
	g.GET("/dashboard", h.dashboard)
	g.GET("/notes/new", h.newNote)
	g.GET("/notes/:id/edit", h.editNote)
	g.POST("/notes", h.save)
	g.POST("/notes/:id/delete", h.delete)
	g.GET("/attachments/:id", h.attachment)
}

// withNotes renders the dashboard list, optionally with the note form open.
func (h *NotesHandler) withNotes(c *gin.Context, status int, modal *noteModal) {
	p := page{Title: "Dashboard", Modal: modal}
	notes, err := h.notes.List(c.Request.Context(), middleware.Subject(c))
	if err != nil {
		logger.Errorf("list notes: %v", err)
		p.LoadError = msgLoadNotes
	}
	p.Notes = notes
	render(c, status, "dashboard.html", p)
}

func (h *NotesHandler) dashboard(c *gin.Context) {
	h.withNotes(c, http.StatusOK, nil)
}

func (h *NotesHandler) newNote(c *gin.Context) {
	h.withNotes(c, http.StatusOK, &noteModal{})
}

func (h *NotesHandler) editNote(c *gin.Context) {
	n, err := h.notes.Get(c.Request.Context(), middleware.Subject(c), c.Param("id"))
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			logger.Errorf("get note %s: %v", c.Param("id"), err)
		}
		setFlash(c, "error", msgLoadNote)
		c.Redirect(http.StatusSeeOther, "/dashboard")
		return
	}
	h.withNotes(c, http.StatusOK, &noteModal{NoteID: n.ID, Title: n.Title, Content: n.Content, Attachments: n.Attachments})
}

func (h *NotesHandler) save(c *gin.Context) {
	uploads, err := parseUploads(c, h.maxUpload)
	modal := &noteModal{NoteID: c.PostForm("note_id"), Title: c.PostForm("title"), Content: c.PostForm("content")}
	if err != nil {
		logger.Warnf("parse note form: %v", err)
		modal.Error = msgSaveFailed
		status := http.StatusBadRequest
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			modal.Error = msgTooLarge
			status = http.StatusRequestEntityTooLarge
		}
		h.withNotes(c, status, modal)
		return
	}

	_, err = h.notes.Save(c.Request.Context(), middleware.Subject(c), service.EditSession{NoteID: modal.NoteID}, modal.Title, modal.Content, uploads)
	switch {
	case err == nil:
		setFlash(c, "success", msgSaved)
		c.Redirect(http.StatusSeeOther, "/dashboard")
	case errors.Is(err, service.ErrTitleRequired):
		modal.Error = service.ErrTitleRequired.Error()
		h.withNotes(c, http.StatusBadRequest, modal)
	case errors.Is(err, service.ErrSaveInProgress):
		modal.Error = msgSaveBusy
		h.withNotes(c, http.StatusConflict, modal)
	case errors.Is(err, service.ErrNotFound):
		setFlash(c, "error", msgLoadNote)
		c.Redirect(http.StatusSeeOther, "/dashboard")
	default:
		modal.Error = saveFailureMessage(err)
		h.withNotes(c, http.StatusInternalServerError, modal)
	}
}

// saveFailureMessage shows the failed operation's own message without the
// stage prefix, falling back to the generic text.
func saveFailureMessage(err error) string {
	var se *service.SaveError
	if errors.As(err, &se) && se.Err != nil {
		if msg := strings.TrimSpace(se.Err.Error()); msg != "" {
			return msg
		}
	}
	return msgSaveFailed
}

func (h *NotesHandler) delete(c *gin.Context) {
	if err := h.notes.Delete(c.Request.Context(), middleware.Subject(c), c.Param("id")); err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			logger.Errorf("delete note %s: %v", c.Param("id"), err)
		}
		setFlash(c, "error", msgDeleteFailed)
	} else {
		setFlash(c, "success", msgDeleted)
	}
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

func (h *NotesHandler) attachment(c *gin.Context) {
	pv, err := h.notes.Preview(c.Request.Context(), middleware.Subject(c), c.Param("id"))
	if err != nil {
		status := http.StatusNotFound
		if !errors.Is(err, service.ErrNotFound) {
			logger.Errorf("preview attachment %s: %v", c.Param("id"), err)
			status = http.StatusInternalServerError
		}
		render(c, status, "attachment.html", page{Title: "Attachment", Error: msgLoadAttachment})
		return
	}
	render(c, http.StatusOK, "attachment.html", page{Title: pv.Attachment.FileName, Preview: pv})
}

// parseUploads reads the multipart form, bounded by maxUpload bytes, and
// returns the selected files in form order.
func parseUploads(c *gin.Context, maxUpload int64) ([]service.Upload, error) {
	if maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload)
	}
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, err
	}
	if c.Request.MultipartForm == nil {
		return nil, nil
	}
	var out []service.Upload
	for _, fh := range c.Request.MultipartForm.File["files"] {
		if fh.Filename == "" {
			continue
		}
		out = append(out, uploadOf(fh))
	}
	return out, nil
}

func uploadOf(fh *multipart.FileHeader) service.Upload {
	return service.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open:        func() (io.ReadCloser, error) { return fh.Open() },
	}
}
