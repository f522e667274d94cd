package internal

import (
	"fmt"
	"strings"
)

// ExitThresholdsFailed is the process exit code used when a run completes but
// one or more thresholds were crossed.
const ExitThresholdsFailed = 99

// ConfigError represents errors loading or resolving configuration files
type ConfigError struct {
	Path string
	Key  string // "strategies", "environments", "users"
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config error [%s]: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("config error [%s] %s: %v", e.Key, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// StoreError represents errors accessing the run history database
type StoreError struct {
	Path string
	Op   string // "open", "migrate", "insert", "query"
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during report export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// ThresholdsFailedError is returned by a completed run whose aggregated
// metrics crossed at least one declared threshold.
type ThresholdsFailedError struct {
	Failed []string
}

func (e *ThresholdsFailedError) Error() string {
	return fmt.Sprintf("%d threshold(s) crossed: %s", len(e.Failed), strings.Join(e.Failed, "; "))
}
