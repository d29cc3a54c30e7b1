package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit_LevelNames(t *testing.T) {
	defer Init("info")
	for in, want := range map[string]string{
		"debug":    "debug",
		" WARN ":   "warn",
		"warning":  "warn",
		"Error":    "error",
		"fatal":    "fatal",
		"":         "info",
		"nonsense": "info",
	} {
		Init(in)
		assert.Equal(t, want, LevelString(), "Init(%q)", in)
	}
}

func TestSetOutput_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	orig := logger
	SetOutput(&buf)
	defer func() { logger = orig; Init("info") }()

	Init("warn")
	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Println("println suppressed")
	Warnf("note save failed at %s", "upload")
	Error("plain error")

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.NotContains(t, out, "println suppressed")
	assert.Contains(t, out, "WARN note save failed at upload")
	assert.Contains(t, out, "ERROR plain error")

	Init("debug")
	buf.Reset()
	Println("signed", "url", 300)
	Debug("orphan sweep")
	assert.Contains(t, buf.String(), "INFO signed url 300")
	assert.Contains(t, buf.String(), "DEBUG orphan sweep")
}
