package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultMaxBodySize int64 = 2 * 1024 * 1024 // 2MB
	DefaultConfigPath        = "config.yaml"
)

// RepositoryConfig declares one GitHub repository to manage. The list is
// seeded into storage at startup; webhooks only apply to declared repos.
type RepositoryConfig struct {
	FullName    string `yaml:"full_name"` // owner/name
	AccessToken string `yaml:"-"`         // From Env: TOKEN_<OWNER>_<NAME> or GITHUB_TOKEN
	AutoReview  *bool  `yaml:"auto_review"`
	AIModel     string `yaml:"ai_model"`
	CreateTasks *bool  `yaml:"create_tasks"`
	Project     string `yaml:"project"` // task project name, empty = default project
}

// GitHubConfig holds GitHub API and OAuth settings.
type GitHubConfig struct {
	APIBase           string `yaml:"api_base"`
	OAuthAuthorizeURL string `yaml:"oauth_authorize_url"`
	OAuthTokenURL     string `yaml:"oauth_token_url"`
	OAuthClientID     string `yaml:"-"` // From Env
	OAuthClientSecret string `yaml:"-"` // From Env
	OAuthScope        string `yaml:"oauth_scope"`
	RedirectURI       string `yaml:"redirect_uri"`
	WebhookURL        string `yaml:"webhook_url"` // public URL registered with CreateWebhook
}

// AIConfig holds configuration for the AI review call.
type AIConfig struct {
	Provider        string  `yaml:"provider"` // openai, anthropic, empty = by model prefix
	Model           string  `yaml:"model"`
	OpenAIEndpoint  string  `yaml:"openai_endpoint"`
	OpenAIAPIKey    string  `yaml:"-"` // From Env
	AnthropicAPIKey string  `yaml:"-"` // From Env
	MaxDiffLines    int     `yaml:"max_diff_lines"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
}

// ReviewConfig holds the review pipeline settings.
type ReviewConfig struct {
	AutoReview     bool          `yaml:"auto_review"`      // default policy for repos without an explicit one
	TimeoutMinutes int           `yaml:"timeout_minutes"`  // watchdog force-fails reviewing PRs older than this
	ScoreThreshold int           `yaml:"score_threshold"`  // task stage auto-advance threshold
	Workers        int           `yaml:"workers"`          // review worker pool size
	QueueSize      int           `yaml:"queue_size"`       // review job queue capacity
	WatchdogPeriod time.Duration `yaml:"watchdog_period"`  // how often the watchdog scans
}

// TasksConfig holds the task tracker integration settings.
type TasksConfig struct {
	CreateTasks    bool   `yaml:"create_tasks"` // default policy
	DefaultProject string `yaml:"default_project"`
}

// DashboardConfig holds dashboard read-API settings.
type DashboardConfig struct {
	RefreshInterval int `yaml:"refresh_interval"` // seconds, advertised in stats responses
	PRLimit         int `yaml:"pr_limit"`
}

// StorageConfig holds configuration for persistence.
type StorageConfig struct {
	Driver  string        `yaml:"driver"` // sqlite
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config holds the configuration for the PR review hub.
type Config struct {
	Log struct {
		Level    string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR
		Format   string `yaml:"format"` // text, json
		Output   string `yaml:"output"` // stdout, stderr, /path/to/file
		Rotation struct {
			MaxSize    int  `yaml:"max_size"`    // Megabytes
			MaxBackups int  `yaml:"max_backups"` // Number of old files to keep
			MaxAge     int  `yaml:"max_age"`     // Days to keep
			Compress   bool `yaml:"compress"`
		} `yaml:"rotation"`
	} `yaml:"log"`

	Server struct {
		Port             int           `yaml:"port"`
		ConcurrencyLimit int           `yaml:"concurrency_limit"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxBodySize      int64         `yaml:"max_body_size"`
		WebhookSecret    string        `yaml:"-"` // From Env
	} `yaml:"server"`

	GitHub GitHubConfig `yaml:"github"`

	AI AIConfig `yaml:"ai"`

	Review ReviewConfig `yaml:"review"`

	Tasks TasksConfig `yaml:"tasks"`

	Dashboard DashboardConfig `yaml:"dashboard"`

	Storage StorageConfig `yaml:"storage"`

	Repositories []RepositoryConfig `yaml:"repositories"`
}

// GetLogLevel returns the slog.Level based on Log.Level string
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig loads configuration from YAML file and supplements with environment variables
func LoadConfig() *Config {
	// .env is optional, ignore absence
	_ = godotenv.Load()

	cfg := &Config{}

	// Set defaults before loading
	cfg.Log.Level = "INFO"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"
	cfg.Log.Rotation.MaxSize = 100
	cfg.Log.Rotation.MaxBackups = 10
	cfg.Log.Rotation.MaxAge = 7
	cfg.Log.Rotation.Compress = true

	cfg.Server.Port = 8080
	cfg.Server.ConcurrencyLimit = 10
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.MaxBodySize = DefaultMaxBodySize

	cfg.GitHub.APIBase = "https://api.github.com"
	cfg.GitHub.OAuthAuthorizeURL = "https://github.com/login/oauth/authorize"
	cfg.GitHub.OAuthTokenURL = "https://github.com/login/oauth/access_token"
	cfg.GitHub.OAuthScope = "user:email,repo:status,read:org"
	cfg.GitHub.RedirectURI = "http://localhost:8080/auth/github/callback"

	cfg.AI.Model = "gpt-4"
	cfg.AI.OpenAIEndpoint = "https://api.openai.com/v1"
	cfg.AI.MaxDiffLines = 5000
	cfg.AI.MaxTokens = 4000
	cfg.AI.Temperature = 0.3

	cfg.Review.AutoReview = true
	cfg.Review.TimeoutMinutes = 30
	cfg.Review.ScoreThreshold = 80
	cfg.Review.Workers = 2
	cfg.Review.QueueSize = 64
	cfg.Review.WatchdogPeriod = time.Minute

	cfg.Tasks.CreateTasks = true
	cfg.Tasks.DefaultProject = "Code Review"

	cfg.Dashboard.RefreshInterval = 30
	cfg.Dashboard.PRLimit = 50

	cfg.Storage.Driver = "sqlite"
	cfg.Storage.DSN = "prreview.db"
	cfg.Storage.Timeout = 5 * time.Second

	// Try to load from YAML
	configPath := getEnv("CONFIG_PATH", DefaultConfigPath)
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			slog.Error("unmarshal config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", configPath)
	} else {
		if !os.IsNotExist(err) {
			slog.Error("read config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config not found, using defaults", "path", configPath)
	}

	// Secrets always come from the environment
	cfg.Server.WebhookSecret = getEnv("WEBHOOK_SECRET", cfg.Server.WebhookSecret)
	cfg.AI.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.AI.OpenAIAPIKey)
	cfg.AI.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AI.AnthropicAPIKey)
	cfg.GitHub.OAuthClientID = getEnv("GITHUB_OAUTH_CLIENT_ID", cfg.GitHub.OAuthClientID)
	cfg.GitHub.OAuthClientSecret = getEnv("GITHUB_OAUTH_CLIENT_SECRET", cfg.GitHub.OAuthClientSecret)

	// Per-repo access tokens: TOKEN_<OWNER>_<NAME> wins, GITHUB_TOKEN is the fallback
	defaultToken := os.Getenv("GITHUB_TOKEN")
	for i := range cfg.Repositories {
		cfg.Repositories[i].AccessToken = getEnv(repoTokenVar(cfg.Repositories[i].FullName), defaultToken)
	}

	if envPort := getEnvInt("PORT", 0); envPort != 0 {
		cfg.Server.Port = envPort
	}
	if envLogLevel := os.Getenv("LOG_LEVEL"); envLogLevel != "" {
		cfg.Log.Level = envLogLevel
	}
	if envLogFormat := os.Getenv("LOG_FORMAT"); envLogFormat != "" {
		cfg.Log.Format = envLogFormat
	}
	if envLogOutput := os.Getenv("LOG_OUTPUT"); envLogOutput != "" {
		cfg.Log.Output = envLogOutput
	}

	return cfg
}

// repoTokenVar maps "octo/hello-world" to "TOKEN_OCTO_HELLO_WORLD".
func repoTokenVar(fullName string) string {
	s := strings.ToUpper(fullName)
	s = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(s)
	return "TOKEN_" + s
}

// RepoAutoReview resolves a repo's auto-review policy against the global default.
func (c *Config) RepoAutoReview(rc RepositoryConfig) bool {
	if rc.AutoReview != nil {
		return *rc.AutoReview
	}
	return c.Review.AutoReview
}

// RepoCreateTasks resolves a repo's task-creation policy against the global default.
func (c *Config) RepoCreateTasks(rc RepositoryConfig) bool {
	if rc.CreateTasks != nil {
		return *rc.CreateTasks
	}
	return c.Tasks.CreateTasks
}

// RepoModel resolves a repo's AI model against the global default.
func (c *Config) RepoModel(rc RepositoryConfig) string {
	if rc.AIModel != "" {
		return rc.AIModel
	}
	return c.AI.Model
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.AI.OpenAIAPIKey == "" && c.AI.AnthropicAPIKey == "" {
		errs = append(errs, "at least one of OPENAI_API_KEY / ANTHROPIC_API_KEY is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid server port: %d", c.Server.Port))
	}
	if c.Server.WebhookSecret == "" {
		// Signature verification fails closed, so webhooks will be rejected.
		errs = append(errs, "WEBHOOK_SECRET is required")
	}
	if c.Review.Workers < 1 {
		errs = append(errs, fmt.Sprintf("invalid review worker count: %d", c.Review.Workers))
	}
	if c.AI.MaxDiffLines < 1 {
		errs = append(errs, fmt.Sprintf("invalid max_diff_lines: %d", c.AI.MaxDiffLines))
	}
	for _, rc := range c.Repositories {
		if !strings.Contains(rc.FullName, "/") {
			errs = append(errs, fmt.Sprintf("repository %q: full_name must be owner/name", rc.FullName))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation: %s", strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
