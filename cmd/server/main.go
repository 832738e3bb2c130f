package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"pr-review-hub/internal/api"
	"pr-review-hub/internal/auth"
	"pr-review-hub/internal/config"
	"pr-review-hub/internal/domain"
	"pr-review-hub/internal/github"
	"pr-review-hub/internal/orchestrator"
	"pr-review-hub/internal/reviewer"
	"pr-review-hub/internal/storage"
	"pr-review-hub/internal/webhook"
	"pr-review-hub/internal/worker"
)

func main() {

	// Load configuration first
	cfg := config.LoadConfig()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup structured logging with configurable level, format, and output
	logger, logCleanup := setupLogger(cfg)
	defer logCleanup()
	slog.SetDefault(logger)

	// Initialize storage
	store, err := storage.NewSQLiteStore(cfg.Storage.DSN, cfg.Storage.Timeout)
	if err != nil {
		slog.Error("init storage failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// GitHub API and OAuth clients
	gh := github.NewClient(cfg.GitHub.APIBase)
	oauth := github.NewOAuth(
		cfg.GitHub.OAuthAuthorizeURL, cfg.GitHub.OAuthTokenURL,
		cfg.GitHub.OAuthClientID, cfg.GitHub.OAuthClientSecret,
		cfg.GitHub.RedirectURI, cfg.GitHub.OAuthScope)

	// AI reviewer and the worker pool that runs review jobs
	rev := reviewer.NewService(cfg.AI)
	pool := worker.NewPool(cfg.Review.Workers, cfg.Review.QueueSize)
	pool.Start()

	orch := orchestrator.New(store, gh, rev, pool, cfg)

	// Seed declared repositories and register missing webhooks
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	if err := seedRepositories(rootCtx, cfg, store, gh); err != nil {
		slog.Error("seed repositories failed", "error", err)
		os.Exit(1)
	}

	// Watchdog force-fails reviews stuck past the configured timeout
	orch.StartWatchdog(rootCtx)

	// Initial reconcile against GitHub, off the startup path. Joined
	// before pool.Stop so a slow sync cannot submit to a closed pool.
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		if created, err := orch.SyncRepositories(rootCtx); err != nil {
			slog.Error("initial sync failed", "error", err)
		} else {
			slog.Info("initial sync finished", "created", created)
		}
	}()

	sessions := auth.NewSessionStore()
	authHandler := auth.NewHandler(oauth, gh, store, sessions)
	webhookHandler := webhook.NewHandler(webhook.NewIngest(store, orch), cfg.Server.WebhookSecret, cfg.Server.ConcurrencyLimit, cfg.Server.MaxBodySize)
	apiHandler := api.NewHandler(store, orch, authHandler, cfg.Dashboard)

	r := chi.NewRouter()
	r.Method(http.MethodPost, "/webhook/github", webhookHandler)

	r.Get("/auth/github", authHandler.Login)
	r.Get("/auth/github/callback", authHandler.Callback)
	r.Get("/auth/logout", authHandler.Logout)

	r.Mount("/api", apiHandler.Routes())

	// Liveness probe
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Readiness probe: storage must answer
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if _, err := store.DashboardStats(req.Context(), time.Now().UTC()); err != nil {
			slog.Warn("storage unhealthy", "error", err)
			http.Error(w, "Storage Unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	})

	// Prometheus Metrics Endpoint
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server start failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("server stopping")

	rootCancel()

	// Give the server 5 seconds to shutdown gracefully
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown forced", "error", err)
		os.Exit(1)
	}

	// Wait for in-flight webhook deliveries, then drain the review queue
	slog.Info("waiting for tasks")
	done := make(chan struct{})
	go func() {
		webhookHandler.WaitForCompletion()
		<-syncDone
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("tasks completed")
	case <-time.After(30 * time.Second):
		slog.Warn("task timeout, exiting")
	}

	slog.Info("server stopped")
}

// seedRepositories upserts every declared repository and, when a public
// webhook URL is configured, registers the webhook for repos that do not
// have one yet. A failed webhook registration is logged, not fatal; the
// repo can still be synced manually.
func seedRepositories(ctx context.Context, cfg *config.Config, store storage.Store, gh *github.Client) error {
	for _, rc := range cfg.Repositories {
		owner, name, _ := strings.Cut(rc.FullName, "/")
		repo := &domain.Repository{
			Owner:       owner,
			Name:        name,
			FullName:    rc.FullName,
			AccessToken: rc.AccessToken,
			IsActive:    true,
			AutoReview:  cfg.RepoAutoReview(rc),
			AIModel:     cfg.RepoModel(rc),
			CreateTasks: cfg.RepoCreateTasks(rc),
		}
		if existing, err := store.GetRepositoryByFullName(ctx, rc.FullName); err == nil {
			repo.ID = existing.ID
			repo.WebhookID = existing.WebhookID
		}

		if repo.CreateTasks {
			name := rc.Project
			if name == "" {
				name = cfg.Tasks.DefaultProject
			}
			project, err := store.EnsureProject(ctx, name)
			if err != nil {
				return fmt.Errorf("ensure project %q: %w", name, err)
			}
			repo.ProjectID = project.ID
		}

		if err := store.UpsertRepository(ctx, repo); err != nil {
			return fmt.Errorf("upsert %s: %w", rc.FullName, err)
		}

		if cfg.GitHub.WebhookURL != "" && repo.WebhookID == 0 {
			hookID, err := gh.CreateWebhook(ctx, repo.AccessToken, repo.FullName, cfg.GitHub.WebhookURL, cfg.Server.WebhookSecret)
			if err != nil {
				slog.Warn("webhook registration failed", "repository", repo.FullName, "error", err)
				continue
			}
			if err := store.SetRepositoryWebhook(ctx, repo.ID, hookID); err != nil {
				return fmt.Errorf("record webhook for %s: %w", repo.FullName, err)
			}
			slog.Info("webhook registered", "repository", repo.FullName, "hook_id", hookID)
		}
	}
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg *config.Config) (*slog.Logger, func()) {
	var writers []io.Writer
	var closers []io.Closer
	outputs := strings.Split(cfg.Log.Output, ",")

	for _, output := range outputs {
		output = strings.TrimSpace(output)
		if output == "" {
			continue
		}

		var w io.Writer
		switch output {
		case "stderr":
			w = os.Stderr
		case "stdout":
			w = os.Stdout
		default:
			// Use lumberjack for log rotation
			l := &lumberjack.Logger{
				Filename:   output,
				MaxSize:    cfg.Log.Rotation.MaxSize,
				MaxBackups: cfg.Log.Rotation.MaxBackups,
				MaxAge:     cfg.Log.Rotation.MaxAge,
				Compress:   cfg.Log.Rotation.Compress,
			}
			w = l
			closers = append(closers, l)
		}
		writers = append(writers, w)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	multiWriter := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: cfg.GetLogLevel()}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(multiWriter, opts)
	} else {
		handler = slog.NewTextHandler(multiWriter, opts)
	}

	cleanup := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	return slog.New(handler), cleanup
}
