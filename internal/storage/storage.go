package storage

import (
	"context"
	"time"

	"pr-review-hub/internal/domain"
)

// Store is the persistence interface for the review hub. The ownership tree
// Repository -> PullRequest -> Review -> Comment cascades on delete;
// user mappings, projects and tasks are independent lookups.
type Store interface {
	// Repositories
	UpsertRepository(ctx context.Context, repo *domain.Repository) error
	GetRepository(ctx context.Context, id int64) (*domain.Repository, error)
	GetRepositoryByFullName(ctx context.Context, fullName string) (*domain.Repository, error)
	ListRepositories(ctx context.Context) ([]*domain.Repository, error)
	SetRepositoryWebhook(ctx context.Context, id, webhookID int64) error
	TouchRepositorySync(ctx context.Context, id int64, at time.Time) error

	// Pull requests
	UpsertPullRequest(ctx context.Context, pr *domain.PullRequest) (created bool, err error)
	GetPullRequest(ctx context.Context, id int64) (*domain.PullRequest, error)
	GetPullRequestByGithubID(ctx context.Context, githubID int64) (*domain.PullRequest, error)
	ListPullRequests(ctx context.Context, status domain.ReviewStatus, limit int) ([]*domain.PullRequest, error)
	SetPullRequestTask(ctx context.Context, prID, taskID int64) error

	// Review status transitions. Each is a conditional update guarded by the
	// current status; ok=false means the precondition did not hold and
	// nothing changed.
	MarkReviewing(ctx context.Context, prID int64, at time.Time) (ok bool, err error)
	MarkCompleted(ctx context.Context, prID int64, score int, model string, at time.Time) (ok bool, err error)
	MarkFailed(ctx context.Context, prID int64, at time.Time) (ok bool, err error)
	ResetToPending(ctx context.Context, prID int64) (ok bool, err error)
	ListStaleReviewing(ctx context.Context, startedBefore time.Time) ([]*domain.PullRequest, error)

	// RecomputeCounts rescans all comments under the PR's reviews and writes
	// the per-severity tallies back onto the PR row.
	RecomputeCounts(ctx context.Context, prID int64) (domain.SeverityCounts, error)

	// Reviews and comments
	CreateReview(ctx context.Context, review *domain.Review) error
	ListReviews(ctx context.Context, prID int64, limit int) ([]*domain.Review, error) // prID 0 = all
	CountsForReview(ctx context.Context, reviewID int64) (domain.SeverityCounts, error)
	CreateComments(ctx context.Context, comments []*domain.Comment) error
	ListCommentsByPR(ctx context.Context, prID int64, limit int) ([]*domain.Comment, error)
	SetCommentResolved(ctx context.Context, commentID, userID int64, resolved bool, at time.Time) error

	// User mappings
	UpsertUserMapping(ctx context.Context, m *domain.UserMapping) error
	GetUserMappingByLogin(ctx context.Context, login string) (*domain.UserMapping, error)
	GetUserMappingByGithubID(ctx context.Context, githubID int64) (*domain.UserMapping, error)

	// Tasks
	EnsureProject(ctx context.Context, name string) (*domain.Project, error)
	ListStages(ctx context.Context, projectID int64) ([]*domain.TaskStage, error)
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	SetTaskStage(ctx context.Context, taskID, stageID int64) error

	// Activity log (append-only)
	AppendActivity(ctx context.Context, prID int64, message string) error
	ListActivity(ctx context.Context, prID int64, limit int) ([]*domain.Activity, error)

	// Dashboard
	DashboardStats(ctx context.Context, now time.Time) (*domain.DashboardStats, error)

	Close() error
}
