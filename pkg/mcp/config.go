// Package mcp implements the stdio MCP companion process. It exposes
// knowledge operations as tools and talks to the running HTTP API rather
// than the database directly, so both surfaces share one code path.
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// rcFileName is the per-project configuration file discovered by walking up
// from the working directory.
const rcFileName = ".knowledgerrc"

// DefaultAPIEndpoint is used when no configuration file sets one.
const DefaultAPIEndpoint = "http://localhost:8000"

// Config holds the MCP process settings read from .knowledgerrc files.
type Config struct {
	APIEndpoint    string   `json:"api_endpoint"`
	UserToken      string   `json:"user_token,omitempty"`
	DefaultProject string   `json:"default_project,omitempty"`
	DefaultTags    []string `json:"default_tags,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		APIEndpoint: DefaultAPIEndpoint,
		DefaultTags: []string{},
	}
}

// LoadConfig discovers configuration by merging .knowledgerrc files. Files
// closer to the working directory win: built-in defaults first, then the
// home directory file, then each ancestor from the filesystem root down to
// the working directory itself.
func LoadConfig(workDir string) (*Config, error) {
	cfg := defaultConfig()

	if home, err := os.UserHomeDir(); err == nil {
		if err := mergeFile(cfg, filepath.Join(home, rcFileName)); err != nil {
			return nil, err
		}
	}

	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	// Collect ancestors root-first so the closest file is merged last.
	var chain []string
	for dir := abs; ; dir = filepath.Dir(dir) {
		chain = append([]string{dir}, chain...)
		if dir == filepath.Dir(dir) {
			break
		}
	}

	for _, dir := range chain {
		if err := mergeFile(cfg, filepath.Join(dir, rcFileName)); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// mergeFile overlays the settings from path onto cfg. A missing file is not
// an error; a malformed one is.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var overlay Config
	if err := json.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if overlay.APIEndpoint != "" {
		cfg.APIEndpoint = overlay.APIEndpoint
	}
	if overlay.UserToken != "" {
		cfg.UserToken = overlay.UserToken
	}
	if overlay.DefaultProject != "" {
		cfg.DefaultProject = overlay.DefaultProject
	}
	if overlay.DefaultTags != nil {
		cfg.DefaultTags = overlay.DefaultTags
	}
	return nil
}

// WriteSample writes a starter .knowledgerrc into dir for users setting up a
// new project.
func WriteSample(dir string) (string, error) {
	path := filepath.Join(dir, rcFileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	}

	sample := Config{
		APIEndpoint: DefaultAPIEndpoint,
		DefaultTags: []string{},
	}
	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
