package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pr-review-hub/internal/github"
	"pr-review-hub/internal/orchestrator"
	"pr-review-hub/internal/storage"

	"github.com/tidwall/gjson"
)

// Ingest normalizes raw GitHub event payloads into orchestrator operations.
// Unknown repositories and PRs are logged and dropped, never errors: a
// webhook source cannot act on a failure response anyway.
type Ingest struct {
	store storage.Store
	orch  *orchestrator.Orchestrator
}

func NewIngest(store storage.Store, orch *orchestrator.Orchestrator) *Ingest {
	return &Ingest{store: store, orch: orch}
}

// Dispatch routes one event to its handler. Unhandled event types are
// ignored (logged at debug).
func (in *Ingest) Dispatch(ctx context.Context, event string, body []byte) error {
	switch event {
	case "pull_request":
		return in.handlePullRequest(ctx, body)
	case "pull_request_review":
		return in.handlePullRequestReview(ctx, body)
	case "push":
		in.handlePush(body)
		return nil
	default:
		slog.Debug("ignoring event", "event", event)
		return nil
	}
}

func (in *Ingest) handlePullRequest(ctx context.Context, body []byte) error {
	payload := gjson.ParseBytes(body)
	prData := payload.Get("pull_request")
	if !prData.Exists() {
		return nil
	}

	fullName := payload.Get("repository.full_name").String()
	repo, err := in.store.GetRepositoryByFullName(ctx, fullName)
	if err != nil || !repo.IsActive {
		slog.Warn("repository not found or inactive, dropping event", "repository", fullName)
		return nil
	}

	action := payload.Get("action").String()
	remote := remoteFromPayload(prData, action)

	pr, created, err := in.orch.UpsertRemotePR(ctx, repo, remote)
	if err != nil {
		return fmt.Errorf("upsert pr #%d: %w", remote.Number, err)
	}

	if created {
		if repo.CreateTasks {
			in.orch.CreateTaskForPR(ctx, repo, pr)
		}
		if repo.AutoReview && action == "opened" {
			if err := in.orch.StartReview(ctx, pr.ID); err != nil {
				slog.Warn("auto review not started", "pr", pr.Number, "error", err)
			}
		}
	}
	slog.Info("pull_request event processed", "action", action, "pr", pr.Number, "repository", fullName, "created", created)
	return nil
}

// remoteFromPayload maps the webhook's pull_request object onto the REST
// shape the orchestrator syncs from. The merged flag wins over the action
// string when deriving state.
func remoteFromPayload(prData gjson.Result, action string) *github.PullRequest {
	remote := &github.PullRequest{
		ID:     prData.Get("id").Int(),
		Number: int(prData.Get("number").Int()),
		Title:  prData.Get("title").String(),
		Body:   prData.Get("body").String(),
		State:  prData.Get("state").String(),
	}
	remote.User.ID = prData.Get("user.id").Int()
	remote.User.Login = prData.Get("user.login").String()
	remote.User.AvatarURL = prData.Get("user.avatar_url").String()
	remote.Head.Ref = prData.Get("head.ref").String()
	remote.Head.SHA = prData.Get("head.sha").String()
	remote.Base.Ref = prData.Get("base.ref").String()

	if t := prData.Get("created_at").String(); t != "" {
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			remote.CreatedAt = parsed
		}
	}
	closedAt := timeField(prData, "closed_at")
	mergedAt := timeField(prData, "merged_at")
	switch {
	case prData.Get("merged").Bool():
		if mergedAt == nil {
			mergedAt = closedAt
		}
		remote.MergedAt = mergedAt
		remote.ClosedAt = closedAt
	case action == "closed":
		if closedAt == nil {
			now := time.Now().UTC()
			closedAt = &now
		}
		remote.ClosedAt = closedAt
	}
	return remote
}

func timeField(data gjson.Result, key string) *time.Time {
	s := data.Get(key).String()
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

func (in *Ingest) handlePullRequestReview(ctx context.Context, body []byte) error {
	payload := gjson.ParseBytes(body)
	reviewData := payload.Get("review")
	prGithubID := payload.Get("pull_request.id").Int()
	if !reviewData.Exists() || prGithubID == 0 {
		return nil
	}

	pr, err := in.store.GetPullRequestByGithubID(ctx, prGithubID)
	if err != nil {
		slog.Warn("pull request not found, dropping review event", "github_id", prGithubID)
		return nil
	}

	login := reviewData.Get("user.login").String()
	summary := reviewData.Get("body").String()
	submittedAt := time.Now().UTC()
	if t := timeField(reviewData, "submitted_at"); t != nil {
		submittedAt = *t
	}

	if _, err := in.orch.RecordHumanReview(ctx, pr.ID, login, summary, 0,
		reviewData.Get("id").Int(), submittedAt); err != nil {
		return err
	}
	slog.Info("human review recorded", "pr", pr.Number, "reviewer", login, "state", reviewData.Get("state").String())
	return nil
}

// handlePush only observes; a reserved extension point.
func (in *Ingest) handlePush(body []byte) {
	payload := gjson.ParseBytes(body)
	slog.Info("push event observed",
		"repository", payload.Get("repository.full_name").String(),
		"ref", payload.Get("ref").String(),
		"commits", len(payload.Get("commits").Array()))
}
