package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func cookieLookup(c *gin.Context) (bool, error) {
	v, err := c.Cookie("sid")
	if err != nil {
		return false, nil
	}
	if v == "broken" {
		return false, errors.New("store unavailable")
	}
	c.Set("sub", v)
	return true, nil
}

func TestRequireSession(t *testing.T) {
	g := gin.New()
	g.GET("/dashboard", RequireSession(cookieLookup, "/signin"), func(c *gin.Context) {
		c.String(http.StatusOK, Subject(c))
	})

	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusFound, rw.Code)
	require.Equal(t, "/signin", rw.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "broken"})
	rw = httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	require.Equal(t, http.StatusFound, rw.Code)

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "user-7"})
	rw = httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, "user-7", rw.Body.String())
}

func TestRedirectIfSession(t *testing.T) {
	g := gin.New()
	g.GET("/signin", RedirectIfSession(cookieLookup, "/dashboard"), func(c *gin.Context) {
		c.String(http.StatusOK, "form")
	})

	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/signin", nil))
	require.Equal(t, http.StatusOK, rw.Code)

	req := httptest.NewRequest(http.MethodGet, "/signin", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "user-7"})
	rw = httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	require.Equal(t, http.StatusFound, rw.Code)
	require.Equal(t, "/dashboard", rw.Header().Get("Location"))
}
