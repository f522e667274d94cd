package internal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogLevel(t *testing.T) {
	originalLevel := logLevel
	defer func() { SetLogLevel(originalLevel) }()

	SetLogLevel(LogLevelDebug)
	if logLevel != LogLevelDebug {
		t.Errorf("SetLogLevel() logLevel = %v, want LogLevelDebug", logLevel)
	}

	SetLogLevel(LogLevelError)
	if logLevel != LogLevelError {
		t.Errorf("SetLogLevel() logLevel = %v, want LogLevelError", logLevel)
	}
}

func TestSetVerbose(t *testing.T) {
	originalLevel := logLevel
	defer func() { SetLogLevel(originalLevel) }()

	SetVerbose(true)
	if logLevel != LogLevelDebug {
		t.Errorf("SetVerbose(true) logLevel = %v, want LogLevelDebug", logLevel)
	}

	SetVerbose(false)
	if logLevel != LogLevelInfo {
		t.Errorf("SetVerbose(false) logLevel = %v, want LogLevelInfo", logLevel)
	}
}

func TestLogOutput_JSON(t *testing.T) {
	originalLevel := logLevel
	var buf bytes.Buffer
	SetLogOutput(&buf, "json")
	defer func() {
		SetLogOutput(&bytes.Buffer{}, "json")
		SetLogLevel(originalLevel)
	}()

	SetLogLevel(LogLevelInfo)
	LogInfo("vu %d ready", 3)
	LogDebug("hidden")

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, "vu 3 ready")
	assert.NotContains(t, out, "hidden")
}

func TestLogOutput_LevelFiltering(t *testing.T) {
	originalLevel := logLevel
	var buf bytes.Buffer
	SetLogOutput(&buf, "json")
	defer func() {
		SetLogOutput(&bytes.Buffer{}, "json")
		SetLogLevel(originalLevel)
	}()

	SetLogLevel(LogLevelError)
	LogWarn("warn message")
	LogError("error message")

	out := buf.String()
	assert.False(t, strings.Contains(out, "warn message"))
	assert.True(t, strings.Contains(out, "error message"))
}

func TestLogLevels(t *testing.T) {
	if LogLevelError >= LogLevelWarn {
		t.Error("LogLevelError should be less than LogLevelWarn")
	}
	if LogLevelWarn >= LogLevelInfo {
		t.Error("LogLevelWarn should be less than LogLevelInfo")
	}
	if LogLevelInfo >= LogLevelDebug {
		t.Error("LogLevelInfo should be less than LogLevelDebug")
	}
}
