package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quillpad/quillpad/pkg/logger"
)

// SessionLookup resolves the browser session carried by the request and
// stores whatever the handlers need on the context. It reports false when
// there is no usable session.
type SessionLookup func(c *gin.Context) (bool, error)

// RequireSession redirects to loginPath unless lookup finds a session.
// Lookup errors are logged and treated as signed out.
func RequireSession(lookup SessionLookup, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := lookup(c)
		if err != nil {
			logger.Errorf("session lookup for %s: %v", c.Request.URL.Path, err)
		}
		if !ok {
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RedirectIfSession sends callers that are already signed in to target.
func RedirectIfSession(lookup SessionLookup, target string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := lookup(c)
		if err != nil {
			logger.Warnf("session lookup for %s: %v", c.Request.URL.Path, err)
		}
		if ok {
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}
		c.Next()
	}
}
