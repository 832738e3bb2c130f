package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pr-review-hub/internal/domain"
)

const detailCommentLimit = 50

func timeNow() time.Time { return time.Now().UTC() }

type statsResponse struct {
	*domain.DashboardStats
	RefreshInterval int `json:"refresh_interval"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.DashboardStats(r.Context(), timeNow())
	if err != nil {
		respondDomainErr(w, err)
		return
	}
	respond(w, http.StatusOK, statsResponse{DashboardStats: stats, RefreshInterval: h.dashboard.RefreshInterval})
}

// prSummary is the list-view projection of a pull request.
type prSummary struct {
	ID           int64               `json:"id"`
	RepositoryID int64               `json:"repository_id"`
	Number       int                 `json:"number"`
	Title        string              `json:"title"`
	Author       string              `json:"author"`
	AuthorAvatar string              `json:"author_avatar,omitempty"`
	State        domain.PRState      `json:"state"`
	ReviewStatus domain.ReviewStatus `json:"review_status"`
	AIScore      int                 `json:"ai_score"`
	CreatedAt    time.Time           `json:"created_at"`
}

func summarize(pr *domain.PullRequest) prSummary {
	return prSummary{
		ID:           pr.ID,
		RepositoryID: pr.RepositoryID,
		Number:       pr.Number,
		Title:        pr.Title,
		Author:       pr.Author,
		AuthorAvatar: pr.AuthorAvatar,
		State:        pr.State,
		ReviewStatus: pr.ReviewStatus,
		AIScore:      pr.AIScore,
		CreatedAt:    pr.CreatedAt,
	}
}

func (h *Handler) ListPullRequests(w http.ResponseWriter, r *http.Request) {
	status := domain.ReviewStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", domain.StatusPending, domain.StatusReviewing, domain.StatusCompleted, domain.StatusFailed:
	default:
		respondErr(w, http.StatusBadRequest, "unknown review status")
		return
	}

	limit, ok := parseLimit(w, r, h.dashboard.PRLimit)
	if !ok {
		return
	}

	prs, err := h.store.ListPullRequests(r.Context(), status, limit)
	if err != nil {
		respondDomainErr(w, err)
		return
	}
	out := make([]prSummary, 0, len(prs))
	for _, pr := range prs {
		out = append(out, summarize(pr))
	}
	respond(w, http.StatusOK, out)
}

type reviewDetail struct {
	*domain.Review
	Counts   domain.SeverityCounts `json:"counts"`
	Duration float64               `json:"duration_minutes"`
}

type prDetail struct {
	*domain.PullRequest
	URL            string             `json:"url"`
	ReviewDuration float64            `json:"ai_review_duration"`
	Reviews        []reviewDetail     `json:"reviews"`
	Comments       []*domain.Comment  `json:"comments"`
	Activity       []*domain.Activity `json:"activity"`
}

func (h *Handler) GetPullRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondErr(w, http.StatusBadRequest, "invalid pull request id")
		return
	}

	ctx := r.Context()
	pr, err := h.store.GetPullRequest(ctx, id)
	if err != nil {
		respondDomainErr(w, err)
		return
	}
	repo, err := h.store.GetRepository(ctx, pr.RepositoryID)
	if err != nil {
		respondDomainErr(w, err)
		return
	}

	reviews, err := h.store.ListReviews(ctx, pr.ID, 0)
	if err != nil {
		respondDomainErr(w, err)
		return
	}
	detail := prDetail{
		PullRequest:    pr,
		URL:            pr.URL(repo.FullName),
		ReviewDuration: pr.ReviewDuration(),
		Reviews:        make([]reviewDetail, 0, len(reviews)),
	}
	for _, rv := range reviews {
		counts, err := h.store.CountsForReview(ctx, rv.ID)
		if err != nil {
			respondDomainErr(w, err)
			return
		}
		detail.Reviews = append(detail.Reviews, reviewDetail{Review: rv, Counts: counts, Duration: rv.Duration()})
	}

	if detail.Comments, err = h.store.ListCommentsByPR(ctx, pr.ID, detailCommentLimit); err != nil {
		respondDomainErr(w, err)
		return
	}
	if detail.Activity, err = h.store.ListActivity(ctx, pr.ID, 20); err != nil {
		respondDomainErr(w, err)
		return
	}

	respond(w, http.StatusOK, detail)
}

func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	var prID int64
	if raw := r.URL.Query().Get("pr_id"); raw != "" {
		var err error
		if prID, err = strconv.ParseInt(raw, 10, 64); err != nil || prID <= 0 {
			respondErr(w, http.StatusBadRequest, "invalid pr_id")
			return
		}
	}

	limit, ok := parseLimit(w, r, 20)
	if !ok {
		return
	}

	reviews, err := h.store.ListReviews(r.Context(), prID, limit)
	if err != nil {
		respondDomainErr(w, err)
		return
	}
	respond(w, http.StatusOK, reviews)
}

// parseLimit reads the limit query parameter, falling back to def and
// capping at maxListLimit. Reports false after writing a 400.
func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		respondErr(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}
