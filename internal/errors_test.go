package internal

import (
	"errors"
	"strings"
	"testing"
)

func TestConfigError(t *testing.T) {
	originalErr := errors.New("no such file")
	err := &ConfigError{
		Path: "/etc/strategies.yaml",
		Key:  "strategies",
		Err:  originalErr,
	}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "config error") {
		t.Errorf("ConfigError.Error() should contain 'config error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "/etc/strategies.yaml") {
		t.Errorf("ConfigError.Error() should contain path, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("ConfigError.Unwrap() should return original error")
	}

	noPath := &ConfigError{Key: "users", Err: originalErr}
	if strings.Contains(noPath.Error(), "  ") {
		t.Errorf("ConfigError.Error() without path has double space: %q", noPath.Error())
	}
}

func TestStoreError(t *testing.T) {
	originalErr := errors.New("database is locked")
	err := &StoreError{
		Path: "history.db",
		Op:   "insert",
		Err:  originalErr,
	}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "store error") {
		t.Errorf("StoreError.Error() should contain 'store error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "insert") {
		t.Errorf("StoreError.Error() should contain op, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("StoreError.Unwrap() should return original error")
	}
}

func TestExportError(t *testing.T) {
	originalErr := errors.New("disk full")
	err := &ExportError{
		Format: "yaml",
		Path:   "reports/run.yaml",
		Err:    originalErr,
	}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "export error") {
		t.Errorf("ExportError.Error() should contain 'export error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "yaml") {
		t.Errorf("ExportError.Error() should contain format, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("ExportError.Unwrap() should return original error")
	}
}

func TestThresholdsFailedError(t *testing.T) {
	err := &ThresholdsFailedError{Failed: []string{"http_req_duration p(95)<2000", "checks rate>0.95"}}

	errorMsg := err.Error()
	if !strings.HasPrefix(errorMsg, "2 threshold(s) crossed") {
		t.Errorf("ThresholdsFailedError.Error() = %q", errorMsg)
	}

	var target *ThresholdsFailedError
	wrapped := errors.Join(errors.New("run finished"), err)
	if !errors.As(wrapped, &target) {
		t.Error("errors.As should find ThresholdsFailedError")
	}
}
