package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Unsetenv("PORT")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("CONFIG_PATH")
	os.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	defer os.Unsetenv("CONFIG_PATH")

	cfg := LoadConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("expected read timeout 10s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.AI.Model != "gpt-4" {
		t.Errorf("expected default model gpt-4, got %s", cfg.AI.Model)
	}
	if cfg.AI.MaxDiffLines != 5000 {
		t.Errorf("expected max diff lines 5000, got %d", cfg.AI.MaxDiffLines)
	}
	if cfg.Review.ScoreThreshold != 80 {
		t.Errorf("expected score threshold 80, got %d", cfg.Review.ScoreThreshold)
	}
	if cfg.Review.TimeoutMinutes != 30 {
		t.Errorf("expected review timeout 30m, got %d", cfg.Review.TimeoutMinutes)
	}
	if cfg.Dashboard.RefreshInterval != 30 || cfg.Dashboard.PRLimit != 50 {
		t.Errorf("unexpected dashboard defaults: %+v", cfg.Dashboard)
	}
	if cfg.Tasks.DefaultProject != "Code Review" {
		t.Errorf("expected default project, got %q", cfg.Tasks.DefaultProject)
	}
}

func TestLoadConfig_YAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
ai:
  model: claude-sonnet-4
  provider: anthropic
review:
  score_threshold: 70
repositories:
  - full_name: acme/rockets
    auto_review: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	os.Setenv("CONFIG_PATH", path)
	os.Setenv("WEBHOOK_SECRET", "s3cret")
	os.Setenv("GITHUB_TOKEN", "gh-default")
	os.Setenv("TOKEN_ACME_ROCKETS", "gh-rockets")
	defer func() {
		os.Unsetenv("CONFIG_PATH")
		os.Unsetenv("WEBHOOK_SECRET")
		os.Unsetenv("GITHUB_TOKEN")
		os.Unsetenv("TOKEN_ACME_ROCKETS")
	}()

	cfg := LoadConfig()

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090 from yaml, got %d", cfg.Server.Port)
	}
	if cfg.AI.Model != "claude-sonnet-4" || cfg.AI.Provider != "anthropic" {
		t.Errorf("unexpected ai config: %+v", cfg.AI)
	}
	if cfg.Review.ScoreThreshold != 70 {
		t.Errorf("expected threshold 70, got %d", cfg.Review.ScoreThreshold)
	}
	if cfg.Server.WebhookSecret != "s3cret" {
		t.Errorf("webhook secret must come from env, got %q", cfg.Server.WebhookSecret)
	}

	if len(cfg.Repositories) != 1 {
		t.Fatalf("expected 1 repository, got %d", len(cfg.Repositories))
	}
	rc := cfg.Repositories[0]
	if rc.AccessToken != "gh-rockets" {
		t.Errorf("repo-specific token must win, got %q", rc.AccessToken)
	}
	if cfg.RepoAutoReview(rc) {
		t.Error("explicit auto_review: false must override the global default")
	}
	if cfg.RepoModel(rc) != "claude-sonnet-4" {
		t.Errorf("repo without a model falls back to the global one, got %q", cfg.RepoModel(rc))
	}
}

func TestRepoTokenVar(t *testing.T) {
	cases := map[string]string{
		"octo/hello-world": "TOKEN_OCTO_HELLO_WORLD",
		"acme/api.v2":      "TOKEN_ACME_API_V2",
	}
	for in, want := range cases {
		if got := repoTokenVar(in); got != want {
			t.Errorf("repoTokenVar(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	os.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	os.Setenv("WEBHOOK_SECRET", "s3cret")
	os.Setenv("OPENAI_API_KEY", "sk-test")
	defer func() {
		os.Unsetenv("CONFIG_PATH")
		os.Unsetenv("WEBHOOK_SECRET")
		os.Unsetenv("OPENAI_API_KEY")
	}()

	cfg := LoadConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Server.WebhookSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing webhook secret")
	}
	cfg.Server.WebhookSecret = "s3cret"

	cfg.Repositories = append(cfg.Repositories, RepositoryConfig{FullName: "no-slash"})
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for malformed repository name")
	}
}
