// Package config reads the run's inputs from the CI environment and decides
// whether the run should act at all.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Defaults applied when the corresponding input is absent.
const (
	DefaultMaxAttempts = 3
	DefaultScopes      = "session_info,read,write"
)

// Config holds every input a run needs, read once per process.
type Config struct {
	// Repository coordinates, from GITHUB_REPOSITORY ("owner/repo").
	Owner string
	Repo  string

	// Registry connection.
	RegistryURL string
	TargetAppID int64

	// Pull request context, from the triggering event.
	PRNumber      int
	PRURL         string
	PRTitle       string
	CommentAuthor string
	CommentBody   string

	// PreviewURL may be empty; ResolvePreviewURL falls back to extracting
	// it from the triggering comment.
	PreviewURL string

	// BotLogin gates execution: when set, only events triggered by this
	// login proceed.
	BotLogin string

	Scopes      []string
	MaxAttempts int
}

// FromEnv reads the configuration from GitHub Actions style environment
// variables (INPUT_* for action inputs, GITHUB_* for repository context).
func FromEnv() (Config, error) {
	cfg := Config{
		RegistryURL:   os.Getenv("INPUT_REGISTRY_URL"),
		PRURL:         os.Getenv("INPUT_PR_URL"),
		PRTitle:       os.Getenv("INPUT_PR_TITLE"),
		CommentAuthor: os.Getenv("INPUT_COMMENT_AUTHOR"),
		CommentBody:   os.Getenv("INPUT_COMMENT_BODY"),
		PreviewURL:    os.Getenv("INPUT_PREVIEW_URL"),
		BotLogin:      os.Getenv("INPUT_BOT_LOGIN"),
		MaxAttempts:   DefaultMaxAttempts,
	}

	repository := os.Getenv("GITHUB_REPOSITORY")
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return Config{}, fmt.Errorf("GITHUB_REPOSITORY must be owner/repo, got %q", repository)
	}
	cfg.Owner = owner
	cfg.Repo = repo

	if cfg.RegistryURL == "" {
		return Config{}, fmt.Errorf("missing required input: registry_url")
	}

	appID := os.Getenv("INPUT_TARGET_APP_ID")
	if appID == "" {
		return Config{}, fmt.Errorf("missing required input: target_app_id")
	}
	id, err := strconv.ParseInt(appID, 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("parsing target_app_id: %w", err)
	}
	cfg.TargetAppID = id

	if raw := os.Getenv("INPUT_PR_NUMBER"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parsing pr_number: %w", err)
		}
		cfg.PRNumber = n
	}
	if cfg.PRURL == "" {
		return Config{}, fmt.Errorf("missing required input: pr_url")
	}

	if raw := os.Getenv("INPUT_MAX_ATTEMPTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parsing max_attempts: %w", err)
		}
		if n < 1 {
			return Config{}, fmt.Errorf("max_attempts must be at least 1, got %d", n)
		}
		cfg.MaxAttempts = n
	}

	scopes := os.Getenv("INPUT_SCOPES")
	if scopes == "" {
		scopes = DefaultScopes
	}
	for _, s := range strings.Split(scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Scopes = append(cfg.Scopes, s)
		}
	}

	return cfg, nil
}

// urlPattern matches the first http(s) URL in free text.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// Gate reports whether the run should proceed. A skipped run is a success
// that takes no action; reason says why for the log.
func (c Config) Gate() (reason string, proceed bool) {
	if c.BotLogin != "" && c.CommentAuthor != c.BotLogin {
		return fmt.Sprintf("comment author %q is not %q", c.CommentAuthor, c.BotLogin), false
	}
	if c.ResolvePreviewURL() == "" {
		return "no preview URL provided or found in the triggering comment", false
	}
	return "", true
}

// ResolvePreviewURL returns the preview URL input, falling back to the first
// URL found in the triggering comment body. Empty when neither yields one.
func (c Config) ResolvePreviewURL() string {
	if c.PreviewURL != "" {
		return c.PreviewURL
	}
	return urlPattern.FindString(c.CommentBody)
}
