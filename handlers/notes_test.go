package handlers

import (
	"context"
	"errors"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/quillpad/quillpad/internal/notes/service"
	"github.com/quillpad/quillpad/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroceriesThenReceipt(t *testing.T) {
	app := newTestApp(t)
	b := app.signedIn(t, "a@x.com")

	rw := b.postMultipart("/notes", map[string]string{"title": "Groceries", "content": "Milk, eggs"})
	require.Equal(t, http.StatusSeeOther, rw.Code, rw.Body.String())

	rw = b.get("/dashboard")
	require.Equal(t, http.StatusOK, rw.Code)
	body := rw.Body.String()
	assert.Equal(t, 1, strings.Count(body, `class="note"`))
	assert.Contains(t, body, "Groceries")
	assert.Contains(t, body, "Milk, eggs")
	assert.NotContains(t, body, `class="attachments"`)
	assert.Contains(t, body, "Note saved successfully!")

	noteID := firstMatch(t, editLinkRe, body)
	rw = b.get("/notes/" + noteID + "/edit")
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "Edit Note")
	assert.Contains(t, rw.Body.String(), `value="Groceries"`)

	rw = b.postMultipart("/notes",
		map[string]string{"note_id": noteID, "title": "Groceries", "content": "Milk, eggs"},
		testFile{name: "receipt.jpg", contentType: "image/jpeg", body: "jpeg-bytes"})
	require.Equal(t, http.StatusSeeOther, rw.Code, rw.Body.String())

	rw = b.get("/dashboard")
	body = rw.Body.String()
	assert.Equal(t, 1, strings.Count(body, `class="note"`))
	assert.Equal(t, 1, strings.Count(body, "receipt.jpg"))
	assert.Contains(t, body, `class="attachments"`)

	attID := firstMatch(t, attachLinkRe, body)
	rw = b.get("/attachments/" + attID)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "<img src=")

	src := firstMatch(t, imgSrcRe, rw.Body.String())
	u, err := url.Parse(html.UnescapeString(src))
	require.NoError(t, err)
	rw = b.get(u.RequestURI())
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "jpeg-bytes", rw.Body.String())
	assert.Equal(t, "image/jpeg", rw.Header().Get("Content-Type"))
}

func TestCreateNoteForm(t *testing.T) {
	app := newTestApp(t)
	b := app.signedIn(t, "a@x.com")
	rw := b.get("/notes/new")
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "Create Note")
	assert.Contains(t, rw.Body.String(), `enctype="multipart/form-data"`)
	assert.NotContains(t, rw.Body.String(), `name="note_id"`)
}

func TestSave_TitleRequired(t *testing.T) {
	app := newTestApp(t)
	b := app.signedIn(t, "a@x.com")

	rw := b.postMultipart("/notes", map[string]string{"title": "   ", "content": "body"},
		testFile{name: "a.txt", contentType: "text/plain", body: "x"})
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Contains(t, rw.Body.String(), "Title is required")
	// typed content survives the re-render
	assert.Contains(t, rw.Body.String(), ">body</textarea>")

	notes, err := app.repo.List(context.Background(), sub(t, app, "a@x.com"))
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestSave_UploadTooLarge(t *testing.T) {
	app := newTestApp(t)
	b := app.signedIn(t, "a@x.com")

	big := strings.Repeat("x", 2<<20)
	rw := b.postMultipart("/notes", map[string]string{"title": "Big"},
		testFile{name: "big.bin", contentType: "application/octet-stream", body: big})
	assert.GreaterOrEqual(t, rw.Code, 400)

	notes, err := app.repo.List(context.Background(), sub(t, app, "a@x.com"))
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestDeleteNote(t *testing.T) {
	app := newTestApp(t)
	b := app.signedIn(t, "a@x.com")
	b.postMultipart("/notes", map[string]string{"title": "Trash me"},
		testFile{name: "doc.pdf", contentType: "application/pdf", body: "%PDF"})
	noteID := firstMatch(t, editLinkRe, b.get("/dashboard").Body.String())

	rw := b.postForm("/notes/"+noteID+"/delete", nil)
	assert.Equal(t, http.StatusSeeOther, rw.Code)

	body := b.get("/dashboard").Body.String()
	assert.Contains(t, body, "Note deleted")
	assert.Contains(t, body, "No notes yet. Create your first note!")

	// attachment rows stay until the orphan sweep
	atts, err := app.repo.ListAttachments(context.Background(), sub(t, app, "a@x.com"), noteID)
	require.NoError(t, err)
	assert.Len(t, atts, 1)
}

func TestNotesAreOwnerScoped(t *testing.T) {
	app := newTestApp(t)
	alice := app.signedIn(t, "alice@x.com")
	alice.postMultipart("/notes", map[string]string{"title": "Private"},
		testFile{name: "secret.png", contentType: "image/png", body: "png"})
	body := alice.get("/dashboard").Body.String()
	noteID := firstMatch(t, editLinkRe, body)
	attID := firstMatch(t, attachLinkRe, body)

	bob := app.signedIn(t, "bob@x.com")
	assert.NotContains(t, bob.get("/dashboard").Body.String(), "Private")

	rw := bob.get("/notes/" + noteID + "/edit")
	assert.Equal(t, http.StatusSeeOther, rw.Code)
	assert.Contains(t, bob.get("/dashboard").Body.String(), "Failed to load note. Please try again.")

	bob.postForm("/notes/"+noteID+"/delete", nil)
	assert.Contains(t, bob.get("/dashboard").Body.String(), "Failed to delete note. Please try again.")

	rw = bob.postMultipart("/notes", map[string]string{"note_id": noteID, "title": "Hijacked"})
	assert.Equal(t, http.StatusSeeOther, rw.Code)

	rw = bob.get("/attachments/" + attID)
	assert.Equal(t, http.StatusNotFound, rw.Code)
	assert.Contains(t, rw.Body.String(), "Failed to load attachment. Please try again.")

	body = alice.get("/dashboard").Body.String()
	assert.Contains(t, body, "Private")
	assert.NotContains(t, body, "Hijacked")
}

func TestAttachmentViewerKinds(t *testing.T) {
	app := newTestApp(t)
	b := app.signedIn(t, "a@x.com")
	b.postMultipart("/notes", map[string]string{"title": "Files"},
		testFile{name: "doc.pdf", contentType: "application/pdf", body: "%PDF"},
		testFile{name: "data.csv", contentType: "text/csv", body: "a,b"})

	ids := attachLinkRe.FindAllStringSubmatch(b.get("/dashboard").Body.String(), -1)
	require.Len(t, ids, 2)

	pdf := b.get("/attachments/" + ids[0][1]).Body.String()
	assert.Contains(t, pdf, "<iframe src=")
	csv := b.get("/attachments/" + ids[1][1]).Body.String()
	assert.Contains(t, csv, `download="data.csv"`)
}

func TestObjects_RejectsTamperedSignature(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.objects.Upload(context.Background(), "k.txt", strings.NewReader("hi"), 2, "text/plain"))
	signed, err := app.objects.SignedURL(context.Background(), "k.txt", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	b := app.browser(t)
	assert.Equal(t, http.StatusOK, b.get(u.RequestURI()).Code)

	q := u.Query()
	q.Set("signature", strings.Repeat("0", 64))
	u.RawQuery = q.Encode()
	assert.Equal(t, http.StatusForbidden, b.get(u.RequestURI()).Code)
}

func sub(t *testing.T, app *testApp, email string) string {
	t.Helper()
	u, err := app.users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u.Sub
}

// quotaStore rejects every upload the way an object store over quota does.
type quotaStore struct {
	*storage.MemoryStorage
}

func (quotaStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return errors.New("The object exceeded the maximum allowed size")
}

func TestSave_ShowsStorageError(t *testing.T) {
	app := newTestAppWithStore(t, quotaStore{storage.NewMemoryStorage("http://notes.test", "s", time.Hour)})
	b := app.signedIn(t, "quota@x.com")

	rw := b.postMultipart("/notes", map[string]string{"title": "Scans", "content": "two pages"},
		testFile{name: "scan.pdf", contentType: "application/pdf", body: "pdf"})
	require.Equal(t, http.StatusInternalServerError, rw.Code)
	body := rw.Body.String()
	assert.Contains(t, body, "The object exceeded the maximum allowed size")
	assert.NotContains(t, body, "Failed to save note. Please try again.")
	assert.NotContains(t, body, "upload:")
	assert.Contains(t, body, `value="Scans"`)

	notes, err := app.repo.List(context.Background(), sub(t, app, "quota@x.com"))
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestSaveFailureMessage(t *testing.T) {
	assert.Equal(t, "a.txt: disk full", saveFailureMessage(&service.SaveError{Stage: "upload", Err: errors.New("a.txt: disk full")}))
	assert.Equal(t, msgSaveFailed, saveFailureMessage(&service.SaveError{Stage: "create", Err: errors.New(" ")}))
	assert.Equal(t, msgSaveFailed, saveFailureMessage(errors.New("unwrapped")))
}
