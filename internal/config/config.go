// Package config resolves environments, applications, strategies and test
// users. Built-in defaults are embedded; a config directory may override any
// entry by name.
package config

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal"
	"github.com/nilo-qa/nilo-loadtest/internal/engine"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaults embed.FS

// Fallback names used when a requested entry does not exist.
const (
	DefaultEnvironment = "sandbox"
	DefaultApplication = "functionary"
	DefaultStrategy    = "smoke"

	// UserAgent is sent with every request.
	UserAgent = "nilo-loadtest/2.0"
)

// Environment is a deployment of the API under test.
type Environment struct {
	Name          string `yaml:"-" json:"name"`
	Description   string `yaml:"description" json:"description"`
	APIBaseURL    string `yaml:"api_base_url" json:"api_base_url"`
	Authorization string `yaml:"authorization" json:"-"`
	FrontURL      string `yaml:"front_url" json:"front_url,omitempty"`
	TimeoutMS     int    `yaml:"timeout_ms" json:"timeout_ms"`
}

// Timeout is the per-request timeout.
func (e Environment) Timeout() time.Duration {
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

// Headers returns the default request headers for the environment.
func (e Environment) Headers() map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json, text/plain, */*",
		"User-Agent":   UserAgent,
	}
	if e.Authorization != "" {
		h["Authorization"] = e.Authorization
	}
	return h
}

// Application is one of the apps sharing the API.
type Application struct {
	Name       string              `yaml:"-" json:"name"`
	ID         int                 `yaml:"id" json:"id"`
	Title      string              `yaml:"title" json:"title"`
	LoginPath  string              `yaml:"login_path" json:"login_path"`
	Scenario   string              `yaml:"scenario" json:"scenario"`
	Thresholds map[string][]string `yaml:"thresholds" json:"thresholds,omitempty"`
}

// Strategy is a named load profile with its pass criteria.
type Strategy struct {
	Name         string              `yaml:"-" json:"name"`
	Description  string              `yaml:"description" json:"description"`
	VUs          int                 `yaml:"vus" json:"vus,omitempty"`
	Duration     time.Duration       `yaml:"duration" json:"duration,omitempty"`
	Stages       []engine.Stage      `yaml:"stages" json:"stages,omitempty"`
	GracefulStop time.Duration       `yaml:"graceful_stop" json:"graceful_stop,omitempty"`
	Thresholds   map[string][]string `yaml:"thresholds" json:"thresholds"`
}

// Profile converts the strategy to an engine profile.
func (s Strategy) Profile() engine.Profile {
	return engine.Profile{
		VUs:          s.VUs,
		Duration:     s.Duration,
		Stages:       s.Stages,
		GracefulStop: s.GracefulStop,
	}
}

// Config holds every known environment, application and strategy.
type Config struct {
	Environments map[string]Environment
	Applications map[string]Application
	Strategies   map[string]Strategy
}

// Load reads the embedded defaults and then, when dir is not empty, the
// files environments.yaml, applications.yaml and strategies.yaml from dir.
// Entries in dir replace defaults of the same name; missing files are
// skipped.
func Load(dir string) (*Config, error) {
	c := &Config{
		Environments: make(map[string]Environment),
		Applications: make(map[string]Application),
		Strategies:   make(map[string]Strategy),
	}

	sources := []struct {
		key string
		out interface{}
	}{
		{"environments", &c.Environments},
		{"applications", &c.Applications},
		{"strategies", &c.Strategies},
	}
	for _, src := range sources {
		path := "defaults/" + src.key + ".yaml"
		data, err := defaults.ReadFile(path)
		if err != nil {
			return nil, &internal.ConfigError{Path: path, Key: src.key, Err: err}
		}
		if err := yaml.Unmarshal(data, src.out); err != nil {
			return nil, &internal.ConfigError{Path: path, Key: src.key, Err: err}
		}
		if dir == "" {
			continue
		}
		path = filepath.Join(dir, src.key+".yaml")
		data, err = os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, &internal.ConfigError{Path: path, Key: src.key, Err: err}
		}
		// yaml.v3 merges into existing maps, replacing entries by key
		if err := yaml.Unmarshal(data, src.out); err != nil {
			return nil, &internal.ConfigError{Path: path, Key: src.key, Err: err}
		}
		internal.LogDebug("Loaded %s overrides from %s", src.key, path)
	}

	for name, e := range c.Environments {
		e.Name = name
		c.Environments[name] = e
	}
	for name, a := range c.Applications {
		a.Name = name
		c.Applications[name] = a
	}
	for name, s := range c.Strategies {
		s.Name = name
		if err := s.Profile().Validate(); err != nil {
			return nil, &internal.ConfigError{Key: "strategies", Err: fmt.Errorf("%s: %w", name, err)}
		}
		for selector, exprs := range s.Thresholds {
			for _, expr := range exprs {
				if _, err := metrics.ParseThreshold(selector, expr); err != nil {
					return nil, &internal.ConfigError{Key: "strategies", Err: fmt.Errorf("%s: %w", name, err)}
				}
			}
		}
		c.Strategies[name] = s
	}
	return c, nil
}

// Environment returns the named environment with env var overrides
// applied. Unknown names fall back to sandbox and found is false.
func (c *Config) Environment(name string) (env Environment, found bool) {
	env, found = c.Environments[name]
	if !found {
		internal.LogWarn("Environment %q not found. Using %q as fallback.", name, DefaultEnvironment)
		env = c.Environments[DefaultEnvironment]
	}
	suffix := strings.ToUpper(env.Name)
	env.APIBaseURL = strings.TrimRight(GetEnv("API_BASE_URL_"+suffix, env.APIBaseURL), "/")
	env.Authorization = GetEnv("API_AUTHORIZATION_"+suffix, env.Authorization)
	env.FrontURL = GetEnv("FRONT_URL_"+suffix, env.FrontURL)
	return env, found
}

// Application returns the named application, falling back to functionary.
func (c *Config) Application(name string) (Application, bool) {
	app, ok := c.Applications[name]
	if !ok {
		internal.LogWarn("Application %q not found. Using %q as fallback.", name, DefaultApplication)
		return c.Applications[DefaultApplication], false
	}
	return app, true
}

// Strategy returns the named strategy, falling back to smoke.
func (c *Config) Strategy(name string) (Strategy, bool) {
	s, ok := c.Strategies[name]
	if !ok {
		internal.LogWarn("Strategy %q not found. Using %q as fallback.", name, DefaultStrategy)
		return c.Strategies[DefaultStrategy], false
	}
	return s, true
}

// StrategyNames lists strategies sorted by name.
func (c *Config) StrategyNames() []string {
	names := make([]string, 0, len(c.Strategies))
	for name := range c.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Thresholds merges the strategy's thresholds with the application's and
// parses them. The result is sorted by selector for stable reports.
func Thresholds(s Strategy, app Application) ([]metrics.Threshold, error) {
	merged := make(map[string][]string)
	for _, src := range []map[string][]string{s.Thresholds, app.Thresholds} {
		for selector, exprs := range src {
			merged[selector] = append(merged[selector], exprs...)
		}
	}
	selectors := make([]string, 0, len(merged))
	for selector := range merged {
		selectors = append(selectors, selector)
	}
	sort.Strings(selectors)

	var out []metrics.Threshold
	for _, selector := range selectors {
		for _, expr := range merged[selector] {
			t, err := metrics.ParseThreshold(selector, expr)
			if err != nil {
				return nil, &internal.ConfigError{Key: "thresholds", Err: err}
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// GetEnv returns the value of envVar, or defaultValue when it is unset or
// empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
