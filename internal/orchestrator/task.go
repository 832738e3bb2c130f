package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pr-review-hub/internal/domain"
)

// CreateTaskForPR creates a tracker task in the repository's project and
// links it to the PR. Best effort: failures are logged and never block the
// calling sync or webhook path.
func (o *Orchestrator) CreateTaskForPR(ctx context.Context, repo *domain.Repository, pr *domain.PullRequest) {
	projectID := repo.ProjectID
	if projectID == 0 {
		project, err := o.store.EnsureProject(ctx, o.cfg.Tasks.DefaultProject)
		if err != nil {
			slog.Error("ensure project failed", "project", o.cfg.Tasks.DefaultProject, "error", err)
			return
		}
		projectID = project.ID
	}

	stages, err := o.store.ListStages(ctx, projectID)
	if err != nil {
		slog.Error("list stages failed", "project_id", projectID, "error", err)
		return
	}
	var stageID int64
	if len(stages) > 0 {
		stageID = stages[0].ID
	}

	var assigneeID int64
	if pr.AuthorGithubID != 0 {
		if mapping, err := o.store.GetUserMappingByGithubID(ctx, pr.AuthorGithubID); err == nil && mapping != nil {
			assigneeID = mapping.ID
		}
	}

	task := &domain.Task{
		ProjectID:     projectID,
		StageID:       stageID,
		Name:          fmt.Sprintf("[PR #%d] %s", pr.Number, pr.Title),
		Description:   pr.Body,
		AssigneeID:    assigneeID,
		PullRequestID: pr.ID,
	}
	if err := o.store.CreateTask(ctx, task); err != nil {
		slog.Error("create task failed", "pr", pr.Number, "error", err)
		return
	}
	if err := o.store.SetPullRequestTask(ctx, pr.ID, task.ID); err != nil {
		slog.Error("link task failed", "pr", pr.Number, "task", task.ID, "error", err)
		return
	}
	pr.TaskID = task.ID
	slog.Info("task created for pr", "pr", pr.Number, "task", task.ID)
}

// advanceTaskStage moves the linked task to the first stage whose name
// contains "ready" or "review" (case-insensitive) once the score clears the
// configured threshold. No matching stage is silently ignored.
func (o *Orchestrator) advanceTaskStage(ctx context.Context, pr *domain.PullRequest, counts domain.SeverityCounts, score int) {
	if pr.TaskID == 0 || score < o.cfg.Review.ScoreThreshold {
		return
	}

	task, err := o.store.GetTask(ctx, pr.TaskID)
	if err != nil {
		slog.Warn("linked task missing", "pr", pr.Number, "task", pr.TaskID, "error", err)
		return
	}
	stages, err := o.store.ListStages(ctx, task.ProjectID)
	if err != nil {
		slog.Warn("list stages failed", "task", task.ID, "error", err)
		return
	}
	for _, stage := range stages {
		name := strings.ToLower(stage.Name)
		if strings.Contains(name, "ready") || strings.Contains(name, "review") {
			if err := o.store.SetTaskStage(ctx, task.ID, stage.ID); err != nil {
				slog.Warn("advance task stage failed", "task", task.ID, "error", err)
				return
			}
			o.note(ctx, pr.ID, fmt.Sprintf(
				"Task advanced to %q (score %d, issues: %d critical, %d high, %d medium, %d low, %d info)",
				stage.Name, score, counts.Critical, counts.High, counts.Medium, counts.Low, counts.Info))
			slog.Info("task stage advanced", "pr", pr.Number, "task", task.ID, "stage", stage.Name)
			return
		}
	}
}
