package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quillpad/quillpad/internal/identity"
	"github.com/quillpad/quillpad/internal/notes/repository"
	"github.com/quillpad/quillpad/internal/notes/service"
	"github.com/quillpad/quillpad/internal/sessions"
	"github.com/quillpad/quillpad/internal/storage"
	"github.com/quillpad/quillpad/internal/tokens"
	"github.com/quillpad/quillpad/internal/users"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type captureMailer struct {
	mu     sync.Mutex
	bodies []string
}

func (m *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bodies)
}

// lastLink returns path and query of the newest mailed link.
func (m *captureMailer) lastLink(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.bodies)
	for _, line := range strings.Split(m.bodies[len(m.bodies)-1], "\n") {
		if strings.HasPrefix(line, "http://notes.test") {
			return strings.TrimPrefix(line, "http://notes.test")
		}
	}
	t.Fatalf("no link in mail")
	return ""
}

type testApp struct {
	router  *gin.Engine
	mailer  *captureMailer
	repo    *repository.MemoryRepo
	objects *storage.MemoryStorage
	users   *users.Service
	checks  map[string]ReadyCheck
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWithStore(t, nil)
}

// newTestAppWithStore saves notes through store instead of the served memory
// store when store is non-nil.
func newTestAppWithStore(t *testing.T, store storage.ObjectStore) *testApp {
	t.Helper()
	us := users.NewService(users.NewMemoryUserRepository())
	mailer := &captureMailer{}
	local := identity.NewLocalProvider(us, identity.NewMemoryTokenStore(), mailer, "http://notes.test")
	iss := tokens.NewIssuer("handler-test-secret", time.Minute)
	id := identity.NewService(local, us, sessions.NewService(sessions.NewMemoryRepository()), sessions.NewMemoryBlacklist(), iss, time.Hour)
	objects := storage.NewMemoryStorage("http://notes.test", "object-secret", time.Hour)
	repo := repository.NewMemoryRepo()
	if store == nil {
		store = objects
	}
	app := &testApp{mailer: mailer, repo: repo, objects: objects, users: us, checks: map[string]ReadyCheck{}}
	app.router = NewRouter(Deps{
		Identity:     id,
		Users:        us,
		Notes:        service.New(repo, store, nil, 5*time.Minute),
		Objects:      objects,
		Cookies:      CookieConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour},
		MaxUpload:    1 << 20,
		SignedURLTTL: 5 * time.Minute,
		Checks:       app.checks,
		Gatherer:     prometheus.NewRegistry(),
		Started:      time.Now(),
	})
	return app
}

// browser replays cookies between requests like a user agent would.
type browser struct {
	t       *testing.T
	app     *testApp
	cookies map[string]*http.Cookie
}

func (a *testApp) browser(t *testing.T) *browser {
	return &browser{t: t, app: a, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rw := httptest.NewRecorder()
	b.app.router.ServeHTTP(rw, req)
	for _, c := range rw.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rw
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

type testFile struct {
	name, contentType, body string
}

func multipartBody(t *testing.T, fields map[string]string, files ...testFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, f.name))
		h.Set("Content-Type", f.contentType)
		pw, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(pw, f.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (b *browser) postMultipart(path string, fields map[string]string, files ...testFile) *httptest.ResponseRecorder {
	body, ct := multipartBody(b.t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return b.do(req)
}

// signedIn registers, verifies and signs in a fresh account.
func (a *testApp) signedIn(t *testing.T, email string) *browser {
	t.Helper()
	b := a.browser(t)
	rw := b.postForm("/signup", url.Values{"email": {email}, "password": {"secret1"}, "confirmPassword": {"secret1"}})
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	rw = b.get(a.mailer.lastLink(t))
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	rw = b.postForm("/signin", url.Values{"email": {email}, "password": {"secret1"}})
	require.Equal(t, http.StatusSeeOther, rw.Code, rw.Body.String())
	require.Equal(t, "/dashboard", rw.Header().Get("Location"))
	return b
}

var (
	editLinkRe   = regexp.MustCompile(`/notes/([^/"]+)/edit`)
	attachLinkRe = regexp.MustCompile(`href="/attachments/([^"]+)"`)
	imgSrcRe     = regexp.MustCompile(`<img src="([^"]+)"`)
)

func firstMatch(t *testing.T, re *regexp.Regexp, body string) string {
	t.Helper()
	m := re.FindStringSubmatch(body)
	require.NotNil(t, m, "no match for %s", re)
	return m[1]
}
