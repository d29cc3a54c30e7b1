package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quillpad/quillpad/internal/models"
	"github.com/quillpad/quillpad/internal/notes/service"
	"github.com/quillpad/quillpad/internal/users"
	"github.com/quillpad/quillpad/pkg/logger"
	"github.com/quillpad/quillpad/pkg/middleware"
)

// APIHandler is the JSON surface for Bearer-token clients.
type APIHandler struct {
	users        *users.Service
	notes        *service.Service
	maxUpload    int64
	signedURLTTL int
}

func NewAPIHandler(u *users.Service, notes *service.Service, maxUpload int64, signedURLTTLSeconds int) *APIHandler {
	return &APIHandler{users: u, notes: notes, maxUpload: maxUpload, signedURLTTL: signedURLTTLSeconds}
}

// Register mounts the API on rg, which must already carry AuthMiddleware.
func (h *APIHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
	rg.GET("/notes", h.listNotes)
	rg.GET("/notes/:id", h.getNote)
	rg.POST("/notes", h.saveNote)
	rg.DELETE("/notes/:id", h.deleteNote)
	rg.GET("/attachments/:id/url", h.attachmentURL)
}

func (h *APIHandler) me(c *gin.Context) {
	u, err := h.users.GetBySub(c.Request.Context(), middleware.Subject(c))
	if err != nil {
		logger.Errorf("api me: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *APIHandler) listNotes(c *gin.Context) {
	notes, err := h.notes.List(c.Request.Context(), middleware.Subject(c))
	if err != nil {
		logger.Errorf("api list notes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgLoadNotes})
		return
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes})
}

func (h *APIHandler) getNote(c *gin.Context) {
	n, err := h.notes.Get(c.Request.Context(), middleware.Subject(c), c.Param("id"))
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
		return
	}
	if err != nil {
		logger.Errorf("api get note: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgLoadNote})
		return
	}
	c.JSON(http.StatusOK, n)
}

// saveNote accepts multipart fields title, content, optional note_id and
// any number of files.
func (h *APIHandler) saveNote(c *gin.Context) {
	uploads, err := parseUploads(c, h.maxUpload)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgTooLarge})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	edit := service.EditSession{NoteID: c.PostForm("note_id")}
	res, err := h.notes.Save(c.Request.Context(), middleware.Subject(c), edit, c.PostForm("title"), c.PostForm("content"), uploads)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrTitleRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrSaveInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": msgSaveBusy})
		return
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": saveFailureMessage(err)})
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"note": res.Note, "created": res.Created, "attachments": res.Attachments})
}

func (h *APIHandler) deleteNote(c *gin.Context) {
	err := h.notes.Delete(c.Request.Context(), middleware.Subject(c), c.Param("id"))
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
		return
	}
	if err != nil {
		logger.Errorf("api delete note: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgDeleteFailed})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) attachmentURL(c *gin.Context) {
	pv, err := h.notes.Preview(c.Request.Context(), middleware.Subject(c), c.Param("id"))
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
		return
	}
	if err != nil {
		logger.Errorf("api attachment url: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgLoadAttachment})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": pv.URL, "kind": pv.Kind, "expires_in": h.signedURLTTL, "attachment": pv.Attachment})
}
