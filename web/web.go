// Package web embeds the HTML views and static assets served by the
// handlers package.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Funcs are the helpers available to every view.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"mb": FormatMB,
		"date": func(t time.Time) string {
			return t.Format("Jan 2, 2006 15:04")
		},
	}
}

// FormatMB renders a byte count as megabytes with two decimals.
func FormatMB(n int64) string {
	return fmt.Sprintf("%.2f MB", float64(n)/1024/1024)
}

// Templates parses every view. Each file is addressable by its base name,
// e.g. "dashboard.html".
func Templates() (*template.Template, error) {
	return template.New("").Funcs(Funcs()).ParseFS(templateFS, "templates/*.html")
}

// MustTemplates is Templates for program start-up.
func MustTemplates() *template.Template {
	return template.Must(Templates())
}

// Static serves the files under static/ at the root of the returned
// file system.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
