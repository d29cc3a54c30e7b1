package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quillpad/quillpad/internal/storage"
)

// RegisterObjects serves signed GETs for the in-process object store.
func RegisterObjects(r gin.IRouter, store *storage.MemoryStorage) {
	r.GET("/objects/*key", func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		obj, err := store.Fetch(key, c.Query("expires"), c.Query("signature"))
		switch {
		case errors.Is(err, storage.ErrSignatureInvalid):
			c.String(http.StatusForbidden, "signature invalid or expired")
			return
		case errors.Is(err, storage.ErrObjectNotFound):
			c.String(http.StatusNotFound, "not found")
			return
		case err != nil:
			c.String(http.StatusInternalServerError, "storage error")
			return
		}
		if obj.CacheControl != "" {
			c.Header("Cache-Control", obj.CacheControl)
		}
		c.Header("X-Content-Type-Options", "nosniff")
		c.Data(http.StatusOK, obj.ContentType, obj.Data)
	})
}
