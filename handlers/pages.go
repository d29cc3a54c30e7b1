package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillpad/quillpad/internal/models"
	"github.com/quillpad/quillpad/internal/notes/service"
)

const (
	accessCookie  = "qp_access"
	refreshCookie = "qp_refresh"
	flashCookie   = "qp_flash"

	genericError = "Something went wrong. Please try again."
)

// CookieConfig controls the session cookies written after sign-in.
type CookieConfig struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// page is the view model shared by every template.
type page struct {
	Title     string
	User      *models.User
	Flash     *flash
	Error     string
	Message   string
	Email     string
	Token     string
	Notes     []*models.Note
	LoadError string
	Modal     *noteModal
	Preview   *service.Preview
}

type noteModal struct {
	NoteID      string
	Title       string
	Content     string
	Attachments []*models.Attachment
	Error       string
}

type flash struct {
	Kind    string
	Message string
}

func render(c *gin.Context, status int, name string, p page) {
	if p.User == nil {
		p.User = currentUser(c)
	}
	if p.Flash == nil {
		p.Flash = popFlash(c)
	}
	c.Header("Cache-Control", "no-store")
	c.HTML(status, name, p)
}

func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get("user"); ok {
		u, _ := v.(*models.User)
		return u
	}
	return nil
}

// setFlash stores a one-shot toast for the next page render.
func setFlash(c *gin.Context, kind, message string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(kind + "|" + message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func popFlash(c *gin.Context) *flash {
	ck, err := c.Request.Cookie(flashCookie)
	if err != nil || ck.Value == "" {
		return nil
	}
	http.SetCookie(c.Writer, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	v, err := url.QueryUnescape(ck.Value)
	if err != nil {
		return nil
	}
	kind, msg, ok := strings.Cut(v, "|")
	if !ok || (kind != "success" && kind != "error") {
		return nil
	}
	return &flash{Kind: kind, Message: msg}
}

func (cc CookieConfig) setAccess(c *gin.Context, token string) {
	cc.set(c, accessCookie, token, cc.AccessTTL)
}

func (cc CookieConfig) setSession(c *gin.Context, access, refresh string) {
	cc.set(c, accessCookie, access, cc.AccessTTL)
	cc.set(c, refreshCookie, refresh, cc.RefreshTTL)
}

func (cc CookieConfig) clear(c *gin.Context) {
	for _, name := range []string{accessCookie, refreshCookie} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name: name, Value: "", Path: "/", MaxAge: -1,
			HttpOnly: true, Secure: cc.Secure, SameSite: http.SameSiteLaxMode,
		})
	}
}

func (cc CookieConfig) set(c *gin.Context, name, value string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
