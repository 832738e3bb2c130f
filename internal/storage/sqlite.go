package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"pr-review-hub/internal/domain"

	_ "modernc.org/sqlite" // Pure Go driver, CGO-free, compatible with CGO_ENABLED=0
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string, busyTimeout time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if busyTimeout > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
    CREATE TABLE IF NOT EXISTS repositories (
        id            INTEGER PRIMARY KEY AUTOINCREMENT,
        github_id     INTEGER NOT NULL DEFAULT 0,
        owner         TEXT NOT NULL,
        name          TEXT NOT NULL,
        full_name     TEXT NOT NULL UNIQUE,
        access_token  TEXT NOT NULL DEFAULT '',
        webhook_id    INTEGER NOT NULL DEFAULT 0,
        is_active     INTEGER NOT NULL DEFAULT 1,
        auto_review   INTEGER NOT NULL DEFAULT 1,
        ai_model      TEXT NOT NULL DEFAULT '',
        create_tasks  INTEGER NOT NULL DEFAULT 1,
        project_id    INTEGER NOT NULL DEFAULT 0,
        last_sync_at  DATETIME
    );

    CREATE TABLE IF NOT EXISTS pull_requests (
        id                  INTEGER PRIMARY KEY AUTOINCREMENT,
        repository_id       INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
        github_id           INTEGER NOT NULL,
        number              INTEGER NOT NULL,
        title               TEXT NOT NULL,
        body                TEXT NOT NULL DEFAULT '',
        author              TEXT NOT NULL DEFAULT '',
        author_github_id    INTEGER NOT NULL DEFAULT 0,
        author_avatar       TEXT NOT NULL DEFAULT '',
        branch              TEXT NOT NULL DEFAULT '',
        base_branch         TEXT NOT NULL DEFAULT '',
        commit_sha          TEXT NOT NULL DEFAULT '',
        state               TEXT NOT NULL DEFAULT 'open',
        review_status       TEXT NOT NULL DEFAULT 'pending',
        ai_score            INTEGER NOT NULL DEFAULT 0,
        ai_model_used       TEXT NOT NULL DEFAULT '',
        review_started_at   DATETIME,
        review_completed_at DATETIME,
        total_comments      INTEGER NOT NULL DEFAULT 0,
        critical_issues     INTEGER NOT NULL DEFAULT 0,
        high_issues         INTEGER NOT NULL DEFAULT 0,
        medium_issues       INTEGER NOT NULL DEFAULT 0,
        low_issues          INTEGER NOT NULL DEFAULT 0,
        info_count          INTEGER NOT NULL DEFAULT 0,
        task_id             INTEGER NOT NULL DEFAULT 0,
        created_at          DATETIME NOT NULL,
        updated_at          DATETIME NOT NULL,
        closed_at           DATETIME,
        UNIQUE(repository_id, github_id)
    );
    CREATE INDEX IF NOT EXISTS idx_prs_status ON pull_requests(review_status);
    CREATE INDEX IF NOT EXISTS idx_prs_created ON pull_requests(created_at);

    CREATE TABLE IF NOT EXISTS reviews (
        id               INTEGER PRIMARY KEY AUTOINCREMENT,
        pull_request_id  INTEGER NOT NULL REFERENCES pull_requests(id) ON DELETE CASCADE,
        reviewer         TEXT NOT NULL DEFAULT '',
        reviewer_type    TEXT NOT NULL DEFAULT 'ai',
        reviewer_user_id INTEGER NOT NULL DEFAULT 0,
        ai_model         TEXT NOT NULL DEFAULT '',
        status           TEXT NOT NULL DEFAULT 'pending',
        score            INTEGER NOT NULL DEFAULT 0,
        summary          TEXT NOT NULL DEFAULT '',
        started_at       DATETIME,
        completed_at     DATETIME,
        github_review_id INTEGER NOT NULL DEFAULT 0,
        created_at       DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_reviews_pr ON reviews(pull_request_id);

    CREATE TABLE IF NOT EXISTS comments (
        id                INTEGER PRIMARY KEY AUTOINCREMENT,
        review_id         INTEGER NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
        pull_request_id   INTEGER NOT NULL,
        file_path         TEXT NOT NULL DEFAULT '',
        line_number       INTEGER NOT NULL DEFAULT 0,
        body              TEXT NOT NULL,
        severity          TEXT NOT NULL DEFAULT 'medium',
        rule              TEXT NOT NULL DEFAULT '',
        rule_category     TEXT NOT NULL DEFAULT 'generic',
        is_ai             INTEGER NOT NULL DEFAULT 1,
        is_resolved       INTEGER NOT NULL DEFAULT 0,
        resolved_at       DATETIME,
        resolved_by       INTEGER NOT NULL DEFAULT 0,
        github_comment_id INTEGER NOT NULL DEFAULT 0,
        created_at        DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_comments_pr ON comments(pull_request_id);
    CREATE INDEX IF NOT EXISTS idx_comments_review ON comments(review_id);

    CREATE TABLE IF NOT EXISTS user_mappings (
        id           INTEGER PRIMARY KEY AUTOINCREMENT,
        github_id    INTEGER NOT NULL UNIQUE,
        login        TEXT NOT NULL UNIQUE,
        avatar_url   TEXT NOT NULL DEFAULT '',
        email        TEXT NOT NULL DEFAULT '',
        name         TEXT NOT NULL DEFAULT '',
        token        TEXT NOT NULL DEFAULT '',
        last_sync_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS projects (
        id   INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE
    );

    CREATE TABLE IF NOT EXISTS task_stages (
        id         INTEGER PRIMARY KEY AUTOINCREMENT,
        project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
        name       TEXT NOT NULL,
        sequence   INTEGER NOT NULL DEFAULT 0
    );

    CREATE TABLE IF NOT EXISTS tasks (
        id              INTEGER PRIMARY KEY AUTOINCREMENT,
        project_id      INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
        stage_id        INTEGER NOT NULL DEFAULT 0,
        name            TEXT NOT NULL,
        description     TEXT NOT NULL DEFAULT '',
        assignee_id     INTEGER NOT NULL DEFAULT 0,
        pull_request_id INTEGER NOT NULL DEFAULT 0,
        created_at      DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS activities (
        id              INTEGER PRIMARY KEY AUTOINCREMENT,
        pull_request_id INTEGER NOT NULL REFERENCES pull_requests(id) ON DELETE CASCADE,
        message         TEXT NOT NULL,
        created_at      DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_activities_pr ON activities(pull_request_id);
    `
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Scanner supports both sql.Row and sql.Rows
type Scanner interface {
	Scan(dest ...any) error
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func zeroNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// rowLimit maps limit<=0 onto SQLite's unbounded LIMIT -1.
func rowLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// --- Repositories ---

func (s *SQLiteStore) UpsertRepository(ctx context.Context, repo *domain.Repository) error {
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO repositories (github_id, owner, name, full_name, access_token, webhook_id,
                                  is_active, auto_review, ai_model, create_tasks, project_id, last_sync_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(full_name) DO UPDATE SET
            github_id    = excluded.github_id,
            owner        = excluded.owner,
            name         = excluded.name,
            access_token = excluded.access_token,
            is_active    = excluded.is_active,
            auto_review  = excluded.auto_review,
            ai_model     = excluded.ai_model,
            create_tasks = excluded.create_tasks,
            project_id   = excluded.project_id
    `, repo.GithubID, repo.Owner, repo.Name, repo.FullName, repo.AccessToken, repo.WebhookID,
		boolInt(repo.IsActive), boolInt(repo.AutoReview), repo.AIModel, boolInt(repo.CreateTasks),
		repo.ProjectID, zeroNullTime(repo.LastSyncAt))
	if err != nil {
		return fmt.Errorf("upsert repository: %w", err)
	}
	if repo.ID == 0 {
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			repo.ID = id
		}
		// On conflict LastInsertId may not reflect the existing row; resolve by name.
		existing, err := s.GetRepositoryByFullName(ctx, repo.FullName)
		if err == nil {
			repo.ID = existing.ID
		}
	}
	return nil
}

const repoColumns = `id, github_id, owner, name, full_name, access_token, webhook_id,
       is_active, auto_review, ai_model, create_tasks, project_id, last_sync_at`

func scanRepository(sc Scanner) (*domain.Repository, error) {
	var r domain.Repository
	var isActive, autoReview, createTasks int
	var lastSync sql.NullTime
	if err := sc.Scan(&r.ID, &r.GithubID, &r.Owner, &r.Name, &r.FullName, &r.AccessToken,
		&r.WebhookID, &isActive, &autoReview, &r.AIModel, &createTasks, &r.ProjectID, &lastSync); err != nil {
		return nil, err
	}
	r.IsActive = isActive != 0
	r.AutoReview = autoReview != 0
	r.CreateTasks = createTasks != 0
	if lastSync.Valid {
		r.LastSyncAt = lastSync.Time
	}
	return &r, nil
}

func (s *SQLiteStore) GetRepository(ctx context.Context, id int64) (*domain.Repository, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+repoColumns+` FROM repositories WHERE id = ?`, id)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRepositoryNotFound
	}
	return repo, err
}

func (s *SQLiteStore) GetRepositoryByFullName(ctx context.Context, fullName string) (*domain.Repository, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+repoColumns+` FROM repositories WHERE full_name = ?`, fullName)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRepositoryNotFound
	}
	return repo, err
}

func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]*domain.Repository, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+repoColumns+` FROM repositories ORDER BY full_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*domain.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			slog.Warn("scan repository failed", "error", err)
			continue
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

func (s *SQLiteStore) SetRepositoryWebhook(ctx context.Context, id, webhookID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE repositories SET webhook_id = ? WHERE id = ?`, webhookID, id)
	return err
}

func (s *SQLiteStore) TouchRepositorySync(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE repositories SET last_sync_at = ? WHERE id = ?`, at, id)
	return err
}

// --- Pull requests ---

const prColumns = `id, repository_id, github_id, number, title, body, author, author_github_id,
       author_avatar, branch, base_branch, commit_sha, state, review_status, ai_score, ai_model_used,
       review_started_at, review_completed_at, total_comments, critical_issues, high_issues,
       medium_issues, low_issues, info_count, task_id, created_at, updated_at, closed_at`

func scanPullRequest(sc Scanner) (*domain.PullRequest, error) {
	var pr domain.PullRequest
	var started, completed, closed sql.NullTime
	if err := sc.Scan(&pr.ID, &pr.RepositoryID, &pr.GithubID, &pr.Number, &pr.Title, &pr.Body,
		&pr.Author, &pr.AuthorGithubID, &pr.AuthorAvatar, &pr.Branch, &pr.BaseBranch, &pr.CommitSHA,
		&pr.State, &pr.ReviewStatus, &pr.AIScore, &pr.AIModelUsed, &started, &completed,
		&pr.Counts.Total, &pr.Counts.Critical, &pr.Counts.High, &pr.Counts.Medium, &pr.Counts.Low,
		&pr.Counts.Info, &pr.TaskID, &pr.CreatedAt, &pr.UpdatedAt, &closed); err != nil {
		return nil, err
	}
	pr.ReviewStartedAt = timePtr(started)
	pr.ReviewCompletedAt = timePtr(completed)
	pr.ClosedAt = timePtr(closed)
	return &pr, nil
}

// UpsertPullRequest inserts a new PR or updates the GitHub-sourced fields of
// an existing one, keyed by (repository_id, github_id). Local review state
// is never touched by the upsert.
func (s *SQLiteStore) UpsertPullRequest(ctx context.Context, pr *domain.PullRequest) (bool, error) {
	now := time.Now().UTC()
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = now
	}
	pr.UpdatedAt = now
	if pr.State == "" {
		pr.State = domain.PROpen
	}
	if pr.ReviewStatus == "" {
		pr.ReviewStatus = domain.StatusPending
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM pull_requests WHERE repository_id = ? AND github_id = ?`,
		pr.RepositoryID, pr.GithubID).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.db.ExecContext(ctx, `
            INSERT INTO pull_requests (repository_id, github_id, number, title, body, author,
                author_github_id, author_avatar, branch, base_branch, commit_sha, state,
                review_status, created_at, updated_at, closed_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        `, pr.RepositoryID, pr.GithubID, pr.Number, pr.Title, pr.Body, pr.Author,
			pr.AuthorGithubID, pr.AuthorAvatar, pr.Branch, pr.BaseBranch, pr.CommitSHA,
			pr.State, pr.ReviewStatus, pr.CreatedAt, pr.UpdatedAt, nullTime(pr.ClosedAt))
		if err != nil {
			return false, fmt.Errorf("insert pull request: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("insert pull request id: %w", err)
		}
		pr.ID = id
		return true, nil
	case err != nil:
		return false, fmt.Errorf("lookup pull request: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        UPDATE pull_requests SET
            number = ?, title = ?, body = ?, author = ?, author_github_id = ?,
            author_avatar = ?, branch = ?, base_branch = ?, commit_sha = ?, state = ?,
            updated_at = ?, closed_at = ?
        WHERE id = ?
    `, pr.Number, pr.Title, pr.Body, pr.Author, pr.AuthorGithubID, pr.AuthorAvatar,
		pr.Branch, pr.BaseBranch, pr.CommitSHA, pr.State, pr.UpdatedAt, nullTime(pr.ClosedAt), existingID)
	if err != nil {
		return false, fmt.Errorf("update pull request: %w", err)
	}
	pr.ID = existingID
	return false, nil
}

func (s *SQLiteStore) GetPullRequest(ctx context.Context, id int64) (*domain.PullRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+prColumns+` FROM pull_requests WHERE id = ?`, id)
	pr, err := scanPullRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPullRequestNotFound
	}
	return pr, err
}

func (s *SQLiteStore) GetPullRequestByGithubID(ctx context.Context, githubID int64) (*domain.PullRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+prColumns+` FROM pull_requests WHERE github_id = ?`, githubID)
	pr, err := scanPullRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPullRequestNotFound
	}
	return pr, err
}

func (s *SQLiteStore) ListPullRequests(ctx context.Context, status domain.ReviewStatus, limit int) ([]*domain.PullRequest, error) {
	query := `SELECT ` + prColumns + ` FROM pull_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE review_status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, rowLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prs []*domain.PullRequest
	for rows.Next() {
		pr, err := scanPullRequest(rows)
		if err != nil {
			slog.Warn("scan pull request failed", "error", err)
			continue
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

func (s *SQLiteStore) SetPullRequestTask(ctx context.Context, prID, taskID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pull_requests SET task_id = ? WHERE id = ?`, taskID, prID)
	return err
}

func (s *SQLiteStore) transition(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkReviewing(ctx context.Context, prID int64, at time.Time) (bool, error) {
	return s.transition(ctx, `
        UPDATE pull_requests
        SET review_status = 'reviewing', review_started_at = ?, review_completed_at = NULL, updated_at = ?
        WHERE id = ? AND review_status = 'pending'
    `, at, at, prID)
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, prID int64, score int, model string, at time.Time) (bool, error) {
	return s.transition(ctx, `
        UPDATE pull_requests
        SET review_status = 'completed', ai_score = ?, ai_model_used = ?,
            review_completed_at = ?, updated_at = ?
        WHERE id = ? AND review_status = 'reviewing'
    `, score, model, at, at, prID)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, prID int64, at time.Time) (bool, error) {
	return s.transition(ctx, `
        UPDATE pull_requests
        SET review_status = 'failed', review_completed_at = ?, updated_at = ?
        WHERE id = ? AND review_status = 'reviewing'
    `, at, at, prID)
}

func (s *SQLiteStore) ResetToPending(ctx context.Context, prID int64) (bool, error) {
	return s.transition(ctx, `
        UPDATE pull_requests
        SET review_status = 'pending', updated_at = ?
        WHERE id = ? AND review_status IN ('completed', 'failed')
    `, time.Now().UTC(), prID)
}

func (s *SQLiteStore) ListStaleReviewing(ctx context.Context, startedBefore time.Time) ([]*domain.PullRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+prColumns+` FROM pull_requests
        WHERE review_status = 'reviewing' AND review_started_at < ?
    `, startedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prs []*domain.PullRequest
	for rows.Next() {
		pr, err := scanPullRequest(rows)
		if err != nil {
			slog.Warn("scan pull request failed", "error", err)
			continue
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

// RecomputeCounts scans every comment under the PR's reviews and writes the
// tallies back. A full rescan rather than incremental counters, so the
// stored numbers cannot drift.
func (s *SQLiteStore) RecomputeCounts(ctx context.Context, prID int64) (domain.SeverityCounts, error) {
	counts, err := s.severityCounts(ctx, `pull_request_id`, prID)
	if err != nil {
		return counts, err
	}
	_, err = s.db.ExecContext(ctx, `
        UPDATE pull_requests
        SET total_comments = ?, critical_issues = ?, high_issues = ?,
            medium_issues = ?, low_issues = ?, info_count = ?
        WHERE id = ?
    `, counts.Total, counts.Critical, counts.High, counts.Medium, counts.Low, counts.Info, prID)
	if err != nil {
		return counts, fmt.Errorf("write counts: %w", err)
	}
	return counts, nil
}

func (s *SQLiteStore) severityCounts(ctx context.Context, column string, id int64) (domain.SeverityCounts, error) {
	var counts domain.SeverityCounts
	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, COUNT(*) FROM comments WHERE `+column+` = ? GROUP BY severity`, id)
	if err != nil {
		return counts, fmt.Errorf("count comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity string
		var n int
		if err := rows.Scan(&severity, &n); err != nil {
			return counts, err
		}
		counts.Total += n
		switch domain.Severity(severity) {
		case domain.SeverityCritical:
			counts.Critical = n
		case domain.SeverityHigh:
			counts.High = n
		case domain.SeverityMedium:
			counts.Medium = n
		case domain.SeverityLow:
			counts.Low = n
		case domain.SeverityInfo:
			counts.Info = n
		}
	}
	return counts, rows.Err()
}

// --- Reviews ---

func (s *SQLiteStore) CreateReview(ctx context.Context, review *domain.Review) error {
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO reviews (pull_request_id, reviewer, reviewer_type, reviewer_user_id, ai_model,
            status, score, summary, started_at, completed_at, github_review_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, review.PullRequestID, review.Reviewer, review.ReviewerType, review.ReviewerUserID,
		review.AIModel, review.Status, review.Score, review.Summary,
		nullTime(review.StartedAt), nullTime(review.CompletedAt), review.GithubReviewID, review.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert review id: %w", err)
	}
	review.ID = id
	return nil
}

func scanReview(sc Scanner) (*domain.Review, error) {
	var r domain.Review
	var started, completed sql.NullTime
	if err := sc.Scan(&r.ID, &r.PullRequestID, &r.Reviewer, &r.ReviewerType, &r.ReviewerUserID,
		&r.AIModel, &r.Status, &r.Score, &r.Summary, &started, &completed,
		&r.GithubReviewID, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.StartedAt = timePtr(started)
	r.CompletedAt = timePtr(completed)
	return &r, nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context, prID int64, limit int) ([]*domain.Review, error) {
	query := `SELECT id, pull_request_id, reviewer, reviewer_type, reviewer_user_id, ai_model,
              status, score, summary, started_at, completed_at, github_review_id, created_at
              FROM reviews`
	args := []any{}
	if prID != 0 {
		query += ` WHERE pull_request_id = ?`
		args = append(args, prID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, rowLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []*domain.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			slog.Warn("scan review failed", "error", err)
			continue
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

func (s *SQLiteStore) CountsForReview(ctx context.Context, reviewID int64) (domain.SeverityCounts, error) {
	return s.severityCounts(ctx, `review_id`, reviewID)
}

// --- Comments ---

func (s *SQLiteStore) CreateComments(ctx context.Context, comments []*domain.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO comments (review_id, pull_request_id, file_path, line_number, body, severity,
            rule, rule_category, is_ai, is_resolved, github_comment_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range comments {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		res, err := stmt.ExecContext(ctx, c.ReviewID, c.PullRequestID, c.FilePath, c.LineNumber,
			c.Body, c.Severity, c.Rule, c.RuleCategory, boolInt(c.IsAI), c.GithubCommentID, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			c.ID = id
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListCommentsByPR(ctx context.Context, prID int64, limit int) ([]*domain.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, review_id, pull_request_id, file_path, line_number, body, severity, rule,
               rule_category, is_ai, is_resolved, resolved_at, resolved_by, github_comment_id, created_at
        FROM comments WHERE pull_request_id = ?
        ORDER BY created_at DESC LIMIT ?
    `, prID, rowLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*domain.Comment
	for rows.Next() {
		var c domain.Comment
		var isAI, isResolved int
		var resolvedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.ReviewID, &c.PullRequestID, &c.FilePath, &c.LineNumber,
			&c.Body, &c.Severity, &c.Rule, &c.RuleCategory, &isAI, &isResolved, &resolvedAt,
			&c.ResolvedBy, &c.GithubCommentID, &c.CreatedAt); err != nil {
			slog.Warn("scan comment failed", "error", err)
			continue
		}
		c.IsAI = isAI != 0
		c.IsResolved = isResolved != 0
		c.ResolvedAt = timePtr(resolvedAt)
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

func (s *SQLiteStore) SetCommentResolved(ctx context.Context, commentID, userID int64, resolved bool, at time.Time) error {
	var res sql.Result
	var err error
	if resolved {
		res, err = s.db.ExecContext(ctx,
			`UPDATE comments SET is_resolved = 1, resolved_at = ?, resolved_by = ? WHERE id = ?`,
			at, userID, commentID)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE comments SET is_resolved = 0, resolved_at = NULL, resolved_by = 0 WHERE id = ?`,
			commentID)
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrCommentNotFound
	}
	return nil
}

// --- User mappings ---

func (s *SQLiteStore) UpsertUserMapping(ctx context.Context, m *domain.UserMapping) error {
	if m.LastSyncAt.IsZero() {
		m.LastSyncAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO user_mappings (github_id, login, avatar_url, email, name, token, last_sync_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(github_id) DO UPDATE SET
            login        = excluded.login,
            avatar_url   = excluded.avatar_url,
            email        = CASE WHEN excluded.email != '' THEN excluded.email ELSE user_mappings.email END,
            name         = CASE WHEN excluded.name != '' THEN excluded.name ELSE user_mappings.name END,
            token        = CASE WHEN excluded.token != '' THEN excluded.token ELSE user_mappings.token END,
            last_sync_at = excluded.last_sync_at
    `, m.GithubID, m.Login, m.AvatarURL, m.Email, m.Name, m.Token, m.LastSyncAt)
	if err != nil {
		return fmt.Errorf("upsert user mapping: %w", err)
	}
	saved, err := s.GetUserMappingByGithubID(ctx, m.GithubID)
	if err != nil {
		return err
	}
	m.ID = saved.ID
	return nil
}

func scanUserMapping(sc Scanner) (*domain.UserMapping, error) {
	var m domain.UserMapping
	if err := sc.Scan(&m.ID, &m.GithubID, &m.Login, &m.AvatarURL, &m.Email, &m.Name,
		&m.Token, &m.LastSyncAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) GetUserMappingByLogin(ctx context.Context, login string) (*domain.UserMapping, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, github_id, login, avatar_url, email, name, token, last_sync_at
        FROM user_mappings WHERE login = ?`, login)
	m, err := scanUserMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // best-effort lookup, absence is not an error
	}
	return m, err
}

func (s *SQLiteStore) GetUserMappingByGithubID(ctx context.Context, githubID int64) (*domain.UserMapping, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, github_id, login, avatar_url, email, name, token, last_sync_at
        FROM user_mappings WHERE github_id = ?`, githubID)
	m, err := scanUserMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// --- Projects and tasks ---

var defaultStages = []string{"Backlog", "In Progress", "Ready for Review", "Done"}

// EnsureProject returns the named project, creating it with the default
// stage set when it does not exist yet.
func (s *SQLiteStore) EnsureProject(ctx context.Context, name string) (*domain.Project, error) {
	var p domain.Project
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM projects WHERE name = ?`, name).
		Scan(&p.ID, &p.Name)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup project: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO projects (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert project id: %w", err)
	}
	for i, stage := range defaultStages {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO task_stages (project_id, name, sequence) VALUES (?, ?, ?)`,
			id, stage, i+1); err != nil {
			return nil, fmt.Errorf("seed stage %q: %w", stage, err)
		}
	}
	return &domain.Project{ID: id, Name: name}, nil
}

func (s *SQLiteStore) ListStages(ctx context.Context, projectID int64) ([]*domain.TaskStage, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, project_id, name, sequence FROM task_stages
        WHERE project_id = ? ORDER BY sequence
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []*domain.TaskStage
	for rows.Next() {
		var st domain.TaskStage
		if err := rows.Scan(&st.ID, &st.ProjectID, &st.Name, &st.Sequence); err != nil {
			return nil, err
		}
		stages = append(stages, &st)
	}
	return stages, rows.Err()
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task *domain.Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO tasks (project_id, stage_id, name, description, assignee_id, pull_request_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, task.ProjectID, task.StageID, task.Name, task.Description, task.AssigneeID,
		task.PullRequestID, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert task id: %w", err)
	}
	task.ID = id
	return nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	var t domain.Task
	err := s.db.QueryRowContext(ctx, `
        SELECT id, project_id, stage_id, name, description, assignee_id, pull_request_id, created_at
        FROM tasks WHERE id = ?`, id).
		Scan(&t.ID, &t.ProjectID, &t.StageID, &t.Name, &t.Description, &t.AssigneeID,
			&t.PullRequestID, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) SetTaskStage(ctx context.Context, taskID, stageID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET stage_id = ? WHERE id = ?`, stageID, taskID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// --- Activity log ---

func (s *SQLiteStore) AppendActivity(ctx context.Context, prID int64, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (pull_request_id, message, created_at) VALUES (?, ?, ?)`,
		prID, message, time.Now().UTC())
	return err
}

func (s *SQLiteStore) ListActivity(ctx context.Context, prID int64, limit int) ([]*domain.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, pull_request_id, message, created_at FROM activities
        WHERE pull_request_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
    `, prID, rowLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.Activity
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.PullRequestID, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &a)
	}
	return entries, rows.Err()
}

// --- Dashboard ---

func (s *SQLiteStore) DashboardStats(ctx context.Context, now time.Time) (*domain.DashboardStats, error) {
	stats := &domain.DashboardStats{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT review_status, COUNT(*) FROM pull_requests GROUP BY review_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.TotalPRs += n
		switch domain.ReviewStatus(status) {
		case domain.StatusPending:
			stats.PendingPRs = n
		case domain.StatusReviewing:
			stats.ReviewingPRs = n
		case domain.StatusCompleted:
			stats.CompletedPRs = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pull_requests WHERE created_at >= ?`, dayStart).
		Scan(&stats.TodayPRs); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG(ai_score) FROM pull_requests WHERE review_status = 'completed'`).
		Scan(&avg); err != nil {
		return nil, err
	}
	if avg.Valid {
		stats.AvgScore = math.Round(avg.Float64*100) / 100
	}

	// Durations computed in Go; SQLite has no native interval arithmetic on
	// the driver's timestamp encoding.
	durRows, err := s.db.QueryContext(ctx, `
        SELECT review_started_at, review_completed_at FROM pull_requests
        WHERE review_started_at IS NOT NULL AND review_completed_at IS NOT NULL
    `)
	if err != nil {
		return nil, err
	}
	defer durRows.Close()
	var totalMinutes float64
	var samples int
	for durRows.Next() {
		var started, completed time.Time
		if err := durRows.Scan(&started, &completed); err != nil {
			return nil, err
		}
		totalMinutes += completed.Sub(started).Minutes()
		samples++
	}
	if err := durRows.Err(); err != nil {
		return nil, err
	}
	if samples > 0 {
		stats.AvgReviewTime = math.Round(totalMinutes/float64(samples)*100) / 100
	}

	return stats, nil
}
