package domain

import (
	"fmt"
	"time"
)

// PRState mirrors the pull request state on GitHub. GitHub is the source
// of truth for this field; it is never advanced locally.
type PRState string

const (
	PROpen   PRState = "open"
	PRClosed PRState = "closed"
	PRMerged PRState = "merged"
)

// ReviewStatus is the local review lifecycle of a pull request.
// Transitions are monotonic (pending -> reviewing -> completed|failed)
// except for explicit resubmission back to pending.
type ReviewStatus string

const (
	StatusPending   ReviewStatus = "pending"
	StatusReviewing ReviewStatus = "reviewing"
	StatusCompleted ReviewStatus = "completed"
	StatusFailed    ReviewStatus = "failed"
)

// ReviewState is the lifecycle of a single Review record.
type ReviewState string

const (
	ReviewPending    ReviewState = "pending"
	ReviewInProgress ReviewState = "in_progress"
	ReviewCompleted  ReviewState = "completed"
	ReviewCancelled  ReviewState = "cancelled"
)

// ReviewerType distinguishes AI reviews from human ones.
type ReviewerType string

const (
	ReviewerAI    ReviewerType = "ai"
	ReviewerHuman ReviewerType = "human"
)

// Severity is the ordinal importance of a review comment,
// critical > high > medium > low > info.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ValidSeverity reports whether s is one of the five known severities.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Repository is a GitHub repository under review management.
type Repository struct {
	ID          int64     `json:"id"`
	GithubID    int64     `json:"github_id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"` // owner/name
	AccessToken string    `json:"-"`
	WebhookID   int64     `json:"webhook_id,omitempty"`
	IsActive    bool      `json:"is_active"`
	AutoReview  bool      `json:"auto_review_enabled"`
	AIModel     string    `json:"ai_model"`
	CreateTasks bool      `json:"create_tasks"`
	ProjectID   int64     `json:"project_id,omitempty"`
	LastSyncAt  time.Time `json:"last_sync_at,omitempty"`
}

// SeverityCounts is the denormalized per-severity comment tally kept on a
// pull request. It is always recomputed from the child comments, never
// incremented in place.
type SeverityCounts struct {
	Total    int `json:"total_comments"`
	Critical int `json:"critical_issues"`
	High     int `json:"high_issues"`
	Medium   int `json:"medium_issues"`
	Low      int `json:"low_issues"`
	Info     int `json:"info_count"`
}

// PullRequest is the aggregate root of the review state machine.
// Uniquely identified by (RepositoryID, GithubID).
type PullRequest struct {
	ID             int64        `json:"id"`
	RepositoryID   int64        `json:"repository_id"`
	GithubID       int64        `json:"github_id"`
	Number         int          `json:"number"`
	Title          string       `json:"title"`
	Body           string       `json:"body,omitempty"`
	Author         string       `json:"author"`
	AuthorGithubID int64        `json:"author_github_id,omitempty"`
	AuthorAvatar   string       `json:"author_avatar,omitempty"`
	Branch         string       `json:"branch,omitempty"`
	BaseBranch     string       `json:"base_branch,omitempty"`
	CommitSHA      string       `json:"commit_sha,omitempty"`
	State          PRState      `json:"state"`
	ReviewStatus   ReviewStatus `json:"review_status"`

	AIScore     int    `json:"ai_score"`
	AIModelUsed string `json:"ai_model_used,omitempty"`

	ReviewStartedAt   *time.Time `json:"ai_review_started_at,omitempty"`
	ReviewCompletedAt *time.Time `json:"ai_review_completed_at,omitempty"`

	Counts SeverityCounts `json:"counts"`

	TaskID int64 `json:"task_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// ReviewDuration returns the AI review duration in minutes, 0 when the
// review has not completed.
func (pr *PullRequest) ReviewDuration() float64 {
	if pr.ReviewStartedAt == nil || pr.ReviewCompletedAt == nil {
		return 0
	}
	return pr.ReviewCompletedAt.Sub(*pr.ReviewStartedAt).Minutes()
}

// URL returns the html location of the PR on GitHub.
func (pr *PullRequest) URL(repoFullName string) string {
	if repoFullName == "" || pr.Number == 0 {
		return ""
	}
	return fmt.Sprintf("https://github.com/%s/pull/%d", repoFullName, pr.Number)
}

// Review is one completed (or in-flight) evaluation of a pull request.
// Once CompletedAt is set the record is immutable; resubmission creates a
// new Review instead of mutating an old one.
type Review struct {
	ID             int64        `json:"id"`
	PullRequestID  int64        `json:"pull_request_id"`
	Reviewer       string       `json:"reviewer"`
	ReviewerType   ReviewerType `json:"reviewer_type"`
	ReviewerUserID int64        `json:"reviewer_user_id,omitempty"`
	AIModel        string       `json:"ai_model,omitempty"`
	Status         ReviewState  `json:"status"`
	Score          int          `json:"score"`
	Summary        string       `json:"summary,omitempty"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	GithubReviewID int64        `json:"github_review_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Duration returns the review duration in minutes.
func (r *Review) Duration() float64 {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt).Minutes()
}

// Comment is a single located piece of review feedback. Comments are
// append-only; resolution is the only field set after creation.
type Comment struct {
	ID              int64      `json:"id"`
	ReviewID        int64      `json:"review_id"`
	PullRequestID   int64      `json:"pull_request_id"`
	FilePath        string     `json:"file_path"`
	LineNumber      int        `json:"line_number"`
	Body            string     `json:"comment"`
	Severity        Severity   `json:"severity"`
	Rule            string     `json:"rule,omitempty"`
	RuleCategory    string     `json:"rule_category"`
	IsAI            bool       `json:"is_ai"`
	IsResolved      bool       `json:"is_resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      int64      `json:"resolved_by,omitempty"`
	GithubCommentID int64      `json:"github_comment_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// UserMapping links a GitHub identity to a local user. Created lazily on
// first webhook or OAuth sighting; the pair (GithubID, Login) is unique.
type UserMapping struct {
	ID         int64     `json:"id"`
	GithubID   int64     `json:"github_id"`
	Login      string    `json:"login"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	Token      string    `json:"-"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

// Project is a task container, the local stand-in for an external tracker
// project.
type Project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TaskStage is a named column within a project board, ordered by Sequence.
type TaskStage struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
	Sequence  int    `json:"sequence"`
}

// Task is the tracker item linked to a pull request.
type Task struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"project_id"`
	StageID       int64     `json:"stage_id,omitempty"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	AssigneeID    int64     `json:"assignee_id,omitempty"`
	PullRequestID int64     `json:"pull_request_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Activity is one entry of the append-only audit trail attached to a
// pull request.
type Activity struct {
	ID            int64     `json:"id"`
	PullRequestID int64     `json:"pull_request_id"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

// DashboardStats is the read-only aggregation served to the dashboard.
type DashboardStats struct {
	TotalPRs      int     `json:"total_prs"`
	PendingPRs    int     `json:"pending_prs"`
	ReviewingPRs  int     `json:"reviewing_prs"`
	CompletedPRs  int     `json:"completed_prs"`
	TodayPRs      int     `json:"today_prs"`
	AvgScore      float64 `json:"avg_score"`
	AvgReviewTime float64 `json:"avg_review_time"` // minutes
}
