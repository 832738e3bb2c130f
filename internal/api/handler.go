// Package api serves the dashboard JSON API: read endpoints for stats,
// pull requests and reviews, and action endpoints that drive the review
// state machine. Every response uses the same envelope so the frontend
// only ever checks one success flag.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pr-review-hub/internal/config"
	"pr-review-hub/internal/domain"
	"pr-review-hub/internal/orchestrator"
	"pr-review-hub/internal/storage"
)

const maxListLimit = 100

// Sessions resolves the authenticated user behind a request.
type Sessions interface {
	CurrentUser(r *http.Request) (userID int64, login string, ok bool)
}

type Handler struct {
	store     storage.Store
	orch      *orchestrator.Orchestrator
	sessions  Sessions
	dashboard config.DashboardConfig
}

func NewHandler(store storage.Store, orch *orchestrator.Orchestrator, sessions Sessions, dashboard config.DashboardConfig) *Handler {
	return &Handler{store: store, orch: orch, sessions: sessions, dashboard: dashboard}
}

// Routes returns the API router, mounted by the server under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/stats", h.Stats)
	r.Get("/pull_requests", h.ListPullRequests)
	r.Get("/pull_request/{id}", h.GetPullRequest)
	r.Get("/reviews", h.ListReviews)

	r.Route("/action", func(r chi.Router) {
		r.Post("/start_review", h.StartReview)
		r.Post("/resubmit_review", h.ResubmitReview)
		r.Post("/submit_review", h.SubmitReview)
		r.Post("/resolve_comment", h.ResolveComment)
		r.Post("/reopen_comment", h.ReopenComment)
		r.Post("/sync_repository", h.SyncRepository)
	})

	return r
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondMsg(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message})
}

func respondErr(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondDomainErr maps domain sentinels onto HTTP statuses. Anything
// unrecognized is an internal error and the raw message stays server-side.
func respondDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPullRequestNotFound),
		errors.Is(err, domain.ErrRepositoryNotFound),
		errors.Is(err, domain.ErrReviewNotFound),
		errors.Is(err, domain.ErrCommentNotFound),
		errors.Is(err, domain.ErrTaskNotFound):
		respondErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		respondErr(w, http.StatusConflict, err.Error())
	default:
		respondErr(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

type prIDRequest struct {
	PullRequestID int64 `json:"pr_id"`
}

func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	var req prIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PullRequestID == 0 {
		respondErr(w, http.StatusBadRequest, "pr_id is required")
		return
	}
	if err := h.orch.StartReview(r.Context(), req.PullRequestID); err != nil {
		respondDomainErr(w, err)
		return
	}
	respondMsg(w, "AI review started")
}

func (h *Handler) ResubmitReview(w http.ResponseWriter, r *http.Request) {
	var req prIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PullRequestID == 0 {
		respondErr(w, http.StatusBadRequest, "pr_id is required")
		return
	}
	if err := h.orch.Resubmit(r.Context(), req.PullRequestID); err != nil {
		respondDomainErr(w, err)
		return
	}
	respondMsg(w, "Review resubmitted")
}

func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	_, login, ok := h.sessions.CurrentUser(r)
	if !ok {
		respondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		PullRequestID int64  `json:"pr_id"`
		Score         int    `json:"score"`
		Summary       string `json:"summary"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PullRequestID == 0 {
		respondErr(w, http.StatusBadRequest, "pr_id is required")
		return
	}
	if req.Score < 0 || req.Score > 100 {
		respondErr(w, http.StatusBadRequest, "score must be between 0 and 100")
		return
	}

	review, err := h.orch.SubmitManualReview(r.Context(), req.PullRequestID, login, req.Summary, req.Score)
	if err != nil {
		respondDomainErr(w, err)
		return
	}
	respond(w, http.StatusOK, review)
}

func (h *Handler) ResolveComment(w http.ResponseWriter, r *http.Request) {
	h.setCommentResolved(w, r, true, "Comment resolved")
}

func (h *Handler) ReopenComment(w http.ResponseWriter, r *http.Request) {
	h.setCommentResolved(w, r, false, "Comment reopened")
}

func (h *Handler) setCommentResolved(w http.ResponseWriter, r *http.Request, resolved bool, message string) {
	userID, _, ok := h.sessions.CurrentUser(r)
	if !ok {
		respondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		CommentID int64 `json:"comment_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CommentID == 0 {
		respondErr(w, http.StatusBadRequest, "comment_id is required")
		return
	}
	if err := h.orch.ResolveComment(r.Context(), req.CommentID, userID, resolved); err != nil {
		respondDomainErr(w, err)
		return
	}
	respondMsg(w, message)
}

func (h *Handler) SyncRepository(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepositoryID int64 `json:"repository_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RepositoryID == 0 {
		respondErr(w, http.StatusBadRequest, "repository_id is required")
		return
	}
	created, err := h.orch.SyncAll(r.Context(), req.RepositoryID)
	if err != nil {
		respondDomainErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]int{"created": created})
}
