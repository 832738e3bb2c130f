// Package orchestrator owns the PR review lifecycle: it decides when the AI
// reviewer runs, persists the verdict and reconciles pull request state with
// what GitHub reports.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pr-review-hub/internal/config"
	"pr-review-hub/internal/domain"
	"pr-review-hub/internal/github"
	"pr-review-hub/internal/metrics"
	"pr-review-hub/internal/reviewer"
	"pr-review-hub/internal/storage"
	"pr-review-hub/internal/worker"
)

// GitHub is the subset of the REST client the orchestrator drives.
type GitHub interface {
	GetDiff(ctx context.Context, token, fullName string, number int) (string, error)
	PostComment(ctx context.Context, token, fullName string, number int, body string) error
	ListPullRequests(ctx context.Context, token, fullName, state string) ([]github.PullRequest, error)
}

// Reviewer produces a verdict for a diff. It never fails: provider and
// parse errors come back as zero-score results.
type Reviewer interface {
	Review(ctx context.Context, repoFullName, model, diff string) *reviewer.Result
}

// Queue accepts asynchronous review jobs.
type Queue interface {
	Submit(job worker.Job) error
}

type Orchestrator struct {
	store    storage.Store
	gh       GitHub
	reviewer Reviewer
	queue    Queue
	cfg      *config.Config
}

func New(store storage.Store, gh GitHub, rev Reviewer, queue Queue, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		store:    store,
		gh:       gh,
		reviewer: rev,
		queue:    queue,
		cfg:      cfg,
	}
}

// StartReview transitions the PR from pending to reviewing and enqueues the
// asynchronous pipeline. Any other starting state is rejected without
// mutation; concurrent callers race on the conditional update and exactly
// one wins.
func (o *Orchestrator) StartReview(ctx context.Context, prID int64) error {
	pr, err := o.store.GetPullRequest(ctx, prID)
	if err != nil {
		return err
	}

	ok, err := o.store.MarkReviewing(ctx, pr.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark reviewing: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: pull request #%d is not pending", domain.ErrInvalidState, pr.Number)
	}

	slog.Info("review queued", "pr", pr.Number, "pr_id", pr.ID)
	if err := o.queue.Submit(func(jobCtx context.Context) error {
		o.runReview(jobCtx, pr.ID)
		return nil
	}); err != nil {
		now := time.Now().UTC()
		if _, ferr := o.store.MarkFailed(ctx, pr.ID, now); ferr != nil {
			slog.Error("failed to mark overflowed review as failed", "pr_id", pr.ID, "error", ferr)
		}
		o.note(ctx, pr.ID, fmt.Sprintf("AI review failed: %v", err))
		return fmt.Errorf("enqueue review: %w", err)
	}
	return nil
}

// runReview is the asynchronous pipeline body. The PR is already in
// reviewing when it runs; every exit path lands the PR in completed or
// failed, never parked in reviewing.
func (o *Orchestrator) runReview(ctx context.Context, prID int64) {
	start := time.Now()

	pr, err := o.store.GetPullRequest(ctx, prID)
	if err != nil {
		slog.Error("review pipeline lost its PR", "pr_id", prID, "error", err)
		return
	}
	repo, err := o.store.GetRepository(ctx, pr.RepositoryID)
	if err != nil {
		o.failReview(ctx, pr, fmt.Sprintf("AI review failed: %v", err), start)
		return
	}
	model := repo.AIModel
	if model == "" {
		model = o.cfg.AI.Model
	}

	diff, err := o.gh.GetDiff(ctx, repo.AccessToken, repo.FullName, pr.Number)
	if err != nil {
		o.failReview(ctx, pr, fmt.Sprintf("AI review failed: diff fetch: %v", err), start)
		return
	}
	if diff == "" {
		o.failReview(ctx, pr, "AI review failed: empty diff", start)
		return
	}

	result := o.reviewer.Review(ctx, repo.FullName, model, diff)
	now := time.Now().UTC()

	review := &domain.Review{
		PullRequestID: pr.ID,
		Reviewer:      "AI",
		ReviewerType:  domain.ReviewerAI,
		AIModel:       model,
		Status:        domain.ReviewCompleted,
		Score:         result.Score,
		Summary:       result.Summary,
		StartedAt:     pr.ReviewStartedAt,
		CompletedAt:   &now,
	}
	if err := o.store.CreateReview(ctx, review); err != nil {
		o.failReview(ctx, pr, fmt.Sprintf("AI review failed: persist review: %v", err), start)
		return
	}

	comments := make([]*domain.Comment, 0, len(result.Comments))
	for _, rc := range result.Comments {
		comments = append(comments, &domain.Comment{
			ReviewID:      review.ID,
			PullRequestID: pr.ID,
			FilePath:      rc.FilePath,
			LineNumber:    rc.LineNumber,
			Body:          rc.Body,
			Severity:      rc.Severity,
			Rule:          rc.Rule,
			RuleCategory:  rc.RuleCategory,
			IsAI:          true,
		})
	}
	if err := o.store.CreateComments(ctx, comments); err != nil {
		o.failReview(ctx, pr, fmt.Sprintf("AI review failed: persist comments: %v", err), start)
		return
	}

	counts, err := o.store.RecomputeCounts(ctx, pr.ID)
	if err != nil {
		slog.Error("recompute counts failed", "pr_id", pr.ID, "error", err)
	}

	if err := o.gh.PostComment(ctx, repo.AccessToken, repo.FullName, pr.Number,
		formatReport(result)); err != nil {
		metrics.CommentPostFailures.WithLabelValues("github").Inc()
		o.failReview(ctx, pr, fmt.Sprintf("AI review failed: post comment: %v", err), start)
		return
	}

	ok, err := o.store.MarkCompleted(ctx, pr.ID, result.Score, model, now)
	if err != nil {
		slog.Error("mark completed failed", "pr_id", pr.ID, "error", err)
		return
	}
	if !ok {
		// The watchdog already moved the PR out of reviewing.
		slog.Warn("review finished after losing the reviewing state", "pr", pr.Number)
		return
	}
	o.note(ctx, pr.ID, fmt.Sprintf("AI review completed with score %d (%d comments)", result.Score, len(result.Comments)))
	o.advanceTaskStage(ctx, pr, counts, result.Score)

	metrics.ReviewsTotal.WithLabelValues("completed").Inc()
	metrics.ReviewDuration.WithLabelValues("completed").Observe(time.Since(start).Seconds())
	metrics.ReviewScore.Observe(float64(result.Score))
	slog.Info("review completed",
		"pr", pr.Number,
		"score", result.Score,
		"comments", len(result.Comments),
		"duration", time.Since(start))
}

func (o *Orchestrator) failReview(ctx context.Context, pr *domain.PullRequest, reason string, start time.Time) {
	if _, err := o.store.MarkFailed(ctx, pr.ID, time.Now().UTC()); err != nil {
		slog.Error("mark failed errored", "pr_id", pr.ID, "error", err)
	}
	o.note(ctx, pr.ID, reason)
	metrics.ReviewsTotal.WithLabelValues("failed").Inc()
	metrics.ReviewDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
	slog.Warn("review failed", "pr", pr.Number, "reason", reason)
}

// Resubmit resets a finished PR to pending so a future StartReview can run
// again. Prior reviews are kept.
func (o *Orchestrator) Resubmit(ctx context.Context, prID int64) error {
	pr, err := o.store.GetPullRequest(ctx, prID)
	if err != nil {
		return err
	}
	ok, err := o.store.ResetToPending(ctx, pr.ID)
	if err != nil {
		return fmt.Errorf("reset to pending: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: pull request #%d is not in a terminal state", domain.ErrInvalidState, pr.Number)
	}
	o.note(ctx, pr.ID, "Review resubmitted")
	return nil
}

// RecordHumanReview persists a completed human review reported by a webhook
// or submitted through the API. The reviewer's local identity is resolved by
// login, best effort. started_at falls back from the PR's AI review start to
// the PR creation time.
func (o *Orchestrator) RecordHumanReview(ctx context.Context, prID int64, reviewerLogin, summary string, score int, githubReviewID int64, submittedAt time.Time) (*domain.Review, error) {
	pr, err := o.store.GetPullRequest(ctx, prID)
	if err != nil {
		return nil, err
	}

	var reviewerUserID int64
	if reviewerLogin != "" {
		if mapping, err := o.store.GetUserMappingByLogin(ctx, reviewerLogin); err != nil {
			slog.Warn("reviewer lookup failed", "login", reviewerLogin, "error", err)
		} else if mapping != nil {
			reviewerUserID = mapping.ID
		}
	}

	startedAt := pr.CreatedAt
	if pr.ReviewStartedAt != nil {
		startedAt = *pr.ReviewStartedAt
	}
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	review := &domain.Review{
		PullRequestID:  pr.ID,
		Reviewer:       reviewerLogin,
		ReviewerType:   domain.ReviewerHuman,
		ReviewerUserID: reviewerUserID,
		Status:         domain.ReviewCompleted,
		Score:          score,
		Summary:        summary,
		StartedAt:      &startedAt,
		CompletedAt:    &submittedAt,
		GithubReviewID: githubReviewID,
	}
	if err := o.store.CreateReview(ctx, review); err != nil {
		return nil, fmt.Errorf("persist human review: %w", err)
	}
	o.note(ctx, pr.ID, fmt.Sprintf("Human review recorded from %s", reviewerLogin))
	return review, nil
}

// SubmitManualReview records a human review entered through the dashboard
// and posts its summary back to GitHub. Posting is best effort; the review
// is already persisted when it fails.
func (o *Orchestrator) SubmitManualReview(ctx context.Context, prID int64, reviewerLogin, summary string, score int) (*domain.Review, error) {
	review, err := o.RecordHumanReview(ctx, prID, reviewerLogin, summary, score, 0, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	pr, err := o.store.GetPullRequest(ctx, prID)
	if err != nil {
		return review, nil
	}
	repo, err := o.store.GetRepository(ctx, pr.RepositoryID)
	if err != nil {
		return review, nil
	}
	body := fmt.Sprintf("## Review by @%s\n\n%s\n\n**Score: %d/100**\n", reviewerLogin, summary, score)
	if err := o.gh.PostComment(ctx, repo.AccessToken, repo.FullName, pr.Number, body); err != nil {
		metrics.CommentPostFailures.WithLabelValues("github").Inc()
		slog.Warn("manual review comment not posted", "pr", pr.Number, "error", err)
	}
	return review, nil
}

// ResolveComment flips a comment's resolution flag.
func (o *Orchestrator) ResolveComment(ctx context.Context, commentID, userID int64, resolved bool) error {
	return o.store.SetCommentResolved(ctx, commentID, userID, resolved, time.Now().UTC())
}

// note appends to the PR activity log; failures are logged, never fatal.
func (o *Orchestrator) note(ctx context.Context, prID int64, message string) {
	if err := o.store.AppendActivity(ctx, prID, message); err != nil {
		slog.Error("append activity failed", "pr_id", prID, "error", err)
	}
}
