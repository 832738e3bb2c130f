package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pr-review-hub/internal/domain"
	"pr-review-hub/internal/github"
	"pr-review-hub/internal/metrics"
)

// UpsertRemotePR reconciles one externally-seen PR with the local record,
// keyed by (repository, external id). The PR state is derived from the
// merged_at/closed_at timestamps, not from webhook action ordering. Returns
// the local record and whether it was newly created.
func (o *Orchestrator) UpsertRemotePR(ctx context.Context, repo *domain.Repository, remote *github.PullRequest) (*domain.PullRequest, bool, error) {
	state := domain.PROpen
	var closedAt *time.Time
	switch {
	case remote.MergedAt != nil:
		state = domain.PRMerged
		closedAt = remote.MergedAt
	case remote.ClosedAt != nil:
		state = domain.PRClosed
		closedAt = remote.ClosedAt
	}

	pr := &domain.PullRequest{
		RepositoryID:   repo.ID,
		GithubID:       remote.ID,
		Number:         remote.Number,
		Title:          remote.Title,
		Body:           remote.Body,
		Author:         remote.User.Login,
		AuthorGithubID: remote.User.ID,
		AuthorAvatar:   remote.User.AvatarURL,
		Branch:         remote.Head.Ref,
		BaseBranch:     remote.Base.Ref,
		CommitSHA:      remote.Head.SHA,
		State:          state,
		CreatedAt:      remote.CreatedAt,
		ClosedAt:       closedAt,
	}
	created, err := o.store.UpsertPullRequest(ctx, pr)
	if err != nil {
		return nil, false, err
	}
	return pr, created, nil
}

// SyncAll lists every PR of the repository (state=all) and reconciles each
// against local records. Newly seen PRs get a task when the repo enables it
// and an auto review when open. Returns the number of newly created PRs.
func (o *Orchestrator) SyncAll(ctx context.Context, repoID int64) (int, error) {
	repo, err := o.store.GetRepository(ctx, repoID)
	if err != nil {
		return 0, err
	}

	remotes, err := o.gh.ListPullRequests(ctx, repo.AccessToken, repo.FullName, "all")
	if err != nil {
		metrics.SyncRuns.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("list pull requests: %w", err)
	}

	synced := 0
	for i := range remotes {
		remote := &remotes[i]
		pr, created, err := o.UpsertRemotePR(ctx, repo, remote)
		if err != nil {
			slog.Error("sync upsert failed", "repository", repo.FullName, "pr", remote.Number, "error", err)
			continue
		}
		if !created {
			continue
		}
		synced++

		if repo.CreateTasks {
			o.CreateTaskForPR(ctx, repo, pr)
		}
		if repo.AutoReview && pr.State == domain.PROpen {
			if err := o.StartReview(ctx, pr.ID); err != nil {
				slog.Warn("auto review not started", "pr", pr.Number, "error", err)
			}
		}
	}

	if err := o.store.TouchRepositorySync(ctx, repo.ID, time.Now().UTC()); err != nil {
		slog.Error("touch repository sync failed", "repository", repo.FullName, "error", err)
	}
	metrics.SyncRuns.WithLabelValues("success").Inc()
	slog.Info("repository synced", "repository", repo.FullName, "seen", len(remotes), "created", synced)
	return synced, nil
}

// SyncRepositories reconciles every active repository against GitHub, a few
// at a time. Per-repo failures are logged and do not stop the others.
// Returns the total number of newly created PRs.
func (o *Orchestrator) SyncRepositories(ctx context.Context) (int, error) {
	repos, err := o.store.ListRepositories(ctx)
	if err != nil {
		return 0, fmt.Errorf("list repositories: %w", err)
	}

	var total atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, repo := range repos {
		if !repo.IsActive {
			continue
		}
		repo := repo
		g.Go(func() error {
			created, err := o.SyncAll(ctx, repo.ID)
			if err != nil {
				slog.Error("repository sync failed", "repository", repo.FullName, "error", err)
				return nil
			}
			total.Add(int64(created))
			return nil
		})
	}
	_ = g.Wait()
	return int(total.Load()), nil
}
