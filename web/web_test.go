package web

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMB(t *testing.T) {
	assert.Equal(t, "0.00 MB", FormatMB(0))
	assert.Equal(t, "1.00 MB", FormatMB(1024*1024))
	assert.Equal(t, "2.50 MB", FormatMB(5*1024*1024/2))
}

func TestTemplatesParse(t *testing.T) {
	tpl, err := Templates()
	require.NoError(t, err)
	for _, name := range []string{"index.html", "signin.html", "signup.html", "reset.html", "reset_confirm.html", "message.html", "dashboard.html", "attachment.html"} {
		assert.NotNil(t, tpl.Lookup(name), name)
	}
}

func TestTemplatesEscape(t *testing.T) {
	tpl, err := Templates()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, tpl.ExecuteTemplate(&buf, "message.html", map[string]interface{}{
		"Title": "Hi",
		"Error": `<script>alert("x")</script>`,
	}))
	assert.NotContains(t, buf.String(), "<script>alert")
	assert.Contains(t, buf.String(), "&lt;script&gt;")
}

func TestStatic(t *testing.T) {
	f, err := Static().Open("app.css")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
