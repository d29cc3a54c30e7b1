package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quillpad/quillpad/internal/identity"
	"github.com/quillpad/quillpad/internal/notes/service"
	"github.com/quillpad/quillpad/internal/storage"
	"github.com/quillpad/quillpad/internal/users"
	"github.com/quillpad/quillpad/pkg/middleware"
	"github.com/quillpad/quillpad/web"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Identity *identity.Service
	Users    *users.Service
	Notes    *service.Service
	// Objects is set when attachments live in the in-process store.
	Objects      *storage.MemoryStorage
	Cookies      CookieConfig
	MaxUpload    int64
	SignedURLTTL time.Duration
	// RateLimit, when set, runs before every route.
	RateLimit gin.HandlerFunc
	Checks    map[string]ReadyCheck
	// Gatherer serves /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	Started  time.Time
}

// NewRouter assembles pages, API, object serving, docs and ops endpoints.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if d.RateLimit != nil {
		r.Use(d.RateLimit)
	}
	r.SetHTMLTemplate(web.MustTemplates())
	r.StaticFS("/static", web.Static())

	auth := NewAuthHandler(d.Identity, d.Cookies)
	auth.Register(r)

	guard := middleware.RequireSession(auth.Lookup, "/signin")
	NewNotesHandler(d.Notes, d.MaxUpload).Register(r, guard)

	if d.Objects != nil {
		RegisterObjects(r, d.Objects)
	}

	api := r.Group("/api/v1", middleware.AuthMiddleware(d.Identity))
	NewAPIHandler(d.Users, d.Notes, d.MaxUpload, int(d.SignedURLTTL.Seconds())).Register(api)

	RegisterSwagger(r)
	RegisterHealth(r, d.Checks, d.Started)

	g := d.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	return r
}
