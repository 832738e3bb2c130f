package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pr-review-hub/internal/config"
	"pr-review-hub/internal/domain"
	"pr-review-hub/internal/github"
	"pr-review-hub/internal/orchestrator"
	"pr-review-hub/internal/reviewer"
	"pr-review-hub/internal/storage"
	"pr-review-hub/internal/worker"
)

const testSecret = "hub-test-secret"

type stubGitHub struct {
	diff string
}

func (s *stubGitHub) GetDiff(ctx context.Context, token, fullName string, number int) (string, error) {
	return s.diff, nil
}

func (s *stubGitHub) PostComment(ctx context.Context, token, fullName string, number int, body string) error {
	return nil
}

func (s *stubGitHub) ListPullRequests(ctx context.Context, token, fullName, state string) ([]github.PullRequest, error) {
	return nil, nil
}

type stubReviewer struct {
	result *reviewer.Result
}

func (s *stubReviewer) Review(ctx context.Context, repoFullName, model, diff string) *reviewer.Result {
	return s.result
}

type inlineQueue struct{}

func (q *inlineQueue) Submit(job worker.Job) error {
	return job(context.Background())
}

type fixture struct {
	store   storage.Store
	handler *Handler
	repo    *domain.Repository
}

func newFixture(t *testing.T, score int) *fixture {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "pr-review-hub-webhook-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := storage.NewSQLiteStore(filepath.Join(tmpDir, "test.db"), 0)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	repo := &domain.Repository{
		Owner: "acme", Name: "rockets", FullName: "acme/rockets",
		IsActive: true, AutoReview: true, CreateTasks: true,
	}
	if err := store.UpsertRepository(context.Background(), repo); err != nil {
		t.Fatalf("UpsertRepository failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.AI.Model = "gpt-4"
	cfg.Review.ScoreThreshold = 80
	cfg.Tasks.DefaultProject = "Code Review"

	orch := orchestrator.New(store,
		&stubGitHub{diff: "diff --git a/x b/x\n"},
		&stubReviewer{result: &reviewer.Result{Score: score, Summary: "ok"}},
		&inlineQueue{}, cfg)
	ingest := NewIngest(store, orch)
	return &fixture{
		store:   store,
		handler: NewHandler(ingest, testSecret, 4, 1<<20),
		repo:    repo,
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	f := newFixture(t, 85)
	f.handler.maxBody = 64

	body := prOpenedPayload(42, 1001, "acme/rockets")
	rec := deliver(t, f.handler, "pull_request", body, sign(body, testSecret))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a body over the cap, got %d", rec.Code)
	}

	prs, _ := f.store.ListPullRequests(context.Background(), "", 10)
	if len(prs) != 0 {
		t.Errorf("oversized delivery must not create records, got %d PRs", len(prs))
	}
}

func prOpenedPayload(number int, githubID int64, repoFullName string) []byte {
	payload := map[string]any{
		"action": "opened",
		"pull_request": map[string]any{
			"id":     githubID,
			"number": number,
			"title":  "Add telemetry",
			"body":   "adds metrics",
			"state":  "open",
			"user":   map[string]any{"id": 7, "login": "octocat"},
			"head":   map[string]any{"ref": "feature/x", "sha": "abc123"},
			"base":   map[string]any{"ref": "main"},
		},
		"repository": map[string]any{"full_name": repoFullName},
	}
	b, _ := json.Marshal(payload)
	return b
}

func deliver(t *testing.T, h *Handler, event string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-Hub-Signature-256", signature)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, 85)
	body := prOpenedPayload(42, 1001, "acme/rockets")

	rec := deliver(t, f.handler, "pull_request", body, "sha256=deadbeef")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "error" {
		t.Errorf("unexpected response: %v", resp)
	}

	// No mutation happened.
	if _, err := f.store.GetPullRequestByGithubID(context.Background(), 1001); err == nil {
		t.Error("rejected delivery must not create records")
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	f := newFixture(t, 85)
	rec := deliver(t, f.handler, "pull_request", prOpenedPayload(42, 1001, "acme/rockets"), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookOpenedRunsFullPipeline(t *testing.T) {
	f := newFixture(t, 85)
	body := prOpenedPayload(42, 1001, "acme/rockets")

	rec := deliver(t, f.handler, "pull_request", body, sign(body, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	f.handler.WaitForCompletion()

	pr, err := f.store.GetPullRequestByGithubID(context.Background(), 1001)
	if err != nil {
		t.Fatalf("PR not created: %v", err)
	}
	if pr.ReviewStatus != domain.StatusCompleted || pr.AIScore != 85 {
		t.Errorf("expected completed review with score 85, got %s/%d", pr.ReviewStatus, pr.AIScore)
	}
	if pr.TaskID == 0 {
		t.Error("expected a linked task")
	}
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, 85)
	body := prOpenedPayload(42, 1001, "acme/rockets")
	signature := sign(body, testSecret)

	for i := 0; i < 2; i++ {
		rec := deliver(t, f.handler, "pull_request", body, signature)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, rec.Code)
		}
		f.handler.WaitForCompletion()
	}

	prs, err := f.store.ListPullRequests(context.Background(), "", 100)
	if err != nil {
		t.Fatalf("ListPullRequests failed: %v", err)
	}
	if len(prs) != 1 {
		t.Errorf("replay must not duplicate PRs, got %d records", len(prs))
	}
}

func TestWebhookUnknownRepositoryDropsSilently(t *testing.T) {
	f := newFixture(t, 85)
	body := prOpenedPayload(9, 9009, "nobody/nothing")

	rec := deliver(t, f.handler, "pull_request", body, sign(body, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("drop must still acknowledge, got %d", rec.Code)
	}
	f.handler.WaitForCompletion()

	if _, err := f.store.GetPullRequestByGithubID(context.Background(), 9009); err == nil {
		t.Error("unknown repository must not create records")
	}
}

func TestWebhookHumanReviewForUnknownPRDropsSilently(t *testing.T) {
	f := newFixture(t, 85)
	payload := map[string]any{
		"action":       "submitted",
		"pull_request": map[string]any{"id": 777777},
		"review": map[string]any{
			"id":           31,
			"state":        "approved",
			"body":         "nice",
			"user":         map[string]any{"login": "reviewer-jo"},
			"submitted_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	body, _ := json.Marshal(payload)

	rec := deliver(t, f.handler, "pull_request_review", body, sign(body, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("drop must still acknowledge, got %d", rec.Code)
	}
	f.handler.WaitForCompletion()

	reviews, _ := f.store.ListReviews(context.Background(), 0, 100)
	if len(reviews) != 0 {
		t.Errorf("unknown PR must not create reviews, got %d", len(reviews))
	}
}

func TestWebhookHumanReviewRecorded(t *testing.T) {
	f := newFixture(t, 85)

	// Seed the PR through a webhook first.
	opened := prOpenedPayload(42, 1001, "acme/rockets")
	deliver(t, f.handler, "pull_request", opened, sign(opened, testSecret))
	f.handler.WaitForCompletion()

	payload := map[string]any{
		"action":       "submitted",
		"pull_request": map[string]any{"id": 1001},
		"review": map[string]any{
			"id":           31,
			"state":        "approved",
			"body":         "ship it",
			"user":         map[string]any{"login": "reviewer-jo"},
			"submitted_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	body, _ := json.Marshal(payload)
	rec := deliver(t, f.handler, "pull_request_review", body, sign(body, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	f.handler.WaitForCompletion()

	pr, _ := f.store.GetPullRequestByGithubID(context.Background(), 1001)
	reviews, _ := f.store.ListReviews(context.Background(), pr.ID, 100)
	var human *domain.Review
	for _, r := range reviews {
		if r.ReviewerType == domain.ReviewerHuman {
			human = r
		}
	}
	if human == nil {
		t.Fatal("expected a human review record")
	}
	if human.Reviewer != "reviewer-jo" || human.Summary != "ship it" || human.GithubReviewID != 31 {
		t.Errorf("unexpected human review: %+v", human)
	}
}

func TestWebhookPushIsLogOnly(t *testing.T) {
	f := newFixture(t, 85)
	body := []byte(fmt.Sprintf(`{"ref":"refs/heads/main","repository":{"full_name":%q},"commits":[{}]}`, "acme/rockets"))

	rec := deliver(t, f.handler, "push", body, sign(body, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	f.handler.WaitForCompletion()

	prs, _ := f.store.ListPullRequests(context.Background(), "", 100)
	if len(prs) != 0 {
		t.Errorf("push must not mutate state, got %d PRs", len(prs))
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	f := newFixture(t, 85)
	req := httptest.NewRequest(http.MethodGet, "/webhook/github", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
