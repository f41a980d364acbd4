package config

import (
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GITHUB_REPOSITORY", "octocat/hello")
	t.Setenv("INPUT_REGISTRY_URL", "wss://registry.example")
	t.Setenv("INPUT_TARGET_APP_ID", "217")
	t.Setenv("INPUT_PR_URL", "https://github.com/octocat/hello/pull/7")
	t.Setenv("INPUT_PR_NUMBER", "7")
	t.Setenv("INPUT_PR_TITLE", "Add login flow")
}

func TestFromEnv_ParsesAllInputs(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INPUT_PREVIEW_URL", "https://pr-7.preview.example")
	t.Setenv("INPUT_MAX_ATTEMPTS", "5")
	t.Setenv("INPUT_SCOPES", "read, write")
	t.Setenv("INPUT_BOT_LOGIN", "preview-bot")
	t.Setenv("INPUT_COMMENT_AUTHOR", "preview-bot")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Owner != "octocat" || cfg.Repo != "hello" {
		t.Errorf("unexpected repository: %s/%s", cfg.Owner, cfg.Repo)
	}
	if cfg.TargetAppID != 217 {
		t.Errorf("unexpected target app id: %d", cfg.TargetAppID)
	}
	if cfg.PRNumber != 7 || cfg.PRTitle != "Add login flow" {
		t.Errorf("unexpected PR context: %+v", cfg)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("unexpected max attempts: %d", cfg.MaxAttempts)
	}
	if len(cfg.Scopes) != 2 || cfg.Scopes[0] != "read" || cfg.Scopes[1] != "write" {
		t.Errorf("unexpected scopes: %v", cfg.Scopes)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("expected default max attempts, got %d", cfg.MaxAttempts)
	}
	if len(cfg.Scopes) != 3 {
		t.Errorf("expected default scopes, got %v", cfg.Scopes)
	}
}

func TestFromEnv_MissingRepository(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GITHUB_REPOSITORY", "not-a-repo")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for malformed repository, got nil")
	}
}

func TestFromEnv_MissingRegistryURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INPUT_REGISTRY_URL", "")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for missing registry_url, got nil")
	}
}

func TestFromEnv_InvalidMaxAttempts(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INPUT_MAX_ATTEMPTS", "0")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for max_attempts below 1, got nil")
	}
}

func TestGate_AuthorMismatchSkips(t *testing.T) {
	cfg := Config{
		BotLogin:      "preview-bot",
		CommentAuthor: "random-user",
		PreviewURL:    "https://pr-7.preview.example",
	}
	reason, proceed := cfg.Gate()
	if proceed {
		t.Fatal("expected gate to skip on author mismatch")
	}
	if reason == "" {
		t.Error("expected a skip reason")
	}
}

func TestGate_NoPreviewURLSkips(t *testing.T) {
	cfg := Config{CommentBody: "deployed, but forgot the link"}
	_, proceed := cfg.Gate()
	if proceed {
		t.Fatal("expected gate to skip without a preview URL")
	}
}

func TestGate_Proceeds(t *testing.T) {
	cfg := Config{
		BotLogin:      "preview-bot",
		CommentAuthor: "preview-bot",
		CommentBody:   "Deployed to https://pr-7.preview.example \U0001F680",
	}
	reason, proceed := cfg.Gate()
	if !proceed {
		t.Fatalf("expected gate to proceed, skipped: %s", reason)
	}
}

func TestResolvePreviewURL_ExplicitWins(t *testing.T) {
	cfg := Config{
		PreviewURL:  "https://explicit.example",
		CommentBody: "see https://from-comment.example",
	}
	if got := cfg.ResolvePreviewURL(); got != "https://explicit.example" {
		t.Errorf("unexpected preview URL: %s", got)
	}
}

func TestResolvePreviewURL_ExtractsFromComment(t *testing.T) {
	cfg := Config{CommentBody: "Preview ready at https://pr-7.preview.example/path?x=1 enjoy"}
	if got := cfg.ResolvePreviewURL(); got != "https://pr-7.preview.example/path?x=1" {
		t.Errorf("unexpected preview URL: %s", got)
	}
}
