// Package auth implements the GitHub OAuth login flow and session cookies.
package auth

import (
	"log/slog"
	"net/http"

	"pr-review-hub/internal/domain"
	"pr-review-hub/internal/github"
	"pr-review-hub/internal/storage"
)

// Handler serves /auth/github (redirect) and /auth/github/callback
// (code exchange, user mapping upsert, session issue).
type Handler struct {
	oauth    *github.OAuth
	gh       *github.Client
	store    storage.Store
	sessions *SessionStore
}

func NewHandler(oauth *github.OAuth, gh *github.Client, store storage.Store, sessions *SessionStore) *Handler {
	return &Handler{oauth: oauth, gh: gh, store: store, sessions: sessions}
}

// Login redirects the browser to GitHub's authorize page with a one-shot
// anti-forgery state cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	state := randomToken()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// Callback finishes the flow: verify state, trade the code for a token,
// fetch the profile, upsert the user mapping and set the session cookie.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		slog.Warn("oauth callback error", "error", errCode)
		http.Redirect(w, r, "/?error=github_auth_"+errCode, http.StatusFound)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Redirect(w, r, "/?error=no_code", http.StatusFound)
		return
	}

	stateParam := q.Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || stateParam == "" || cookie.Value != stateParam {
		slog.Warn("oauth state mismatch")
		http.Redirect(w, r, "/?error=state_mismatch", http.StatusFound)
		return
	}
	// One-shot: clear the state cookie.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	ctx := r.Context()
	token, err := h.oauth.ExchangeCode(ctx, code)
	if err != nil {
		slog.Error("token exchange failed", "error", err)
		http.Redirect(w, r, "/?error=token_exchange_failed", http.StatusFound)
		return
	}

	user, err := h.gh.GetAuthenticatedUser(ctx, token)
	if err != nil {
		slog.Error("fetch github user failed", "error", err)
		http.Redirect(w, r, "/?error=fetch_user_failed", http.StatusFound)
		return
	}

	mapping := &domain.UserMapping{
		GithubID:  user.ID,
		Login:     user.Login,
		AvatarURL: user.AvatarURL,
		Email:     user.Email,
		Name:      user.Name,
		Token:     token,
	}
	if err := h.store.UpsertUserMapping(ctx, mapping); err != nil {
		slog.Error("upsert user mapping failed", "login", user.Login, "error", err)
		http.Redirect(w, r, "/?error=user_mapping_failed", http.StatusFound)
		return
	}

	sessionToken := h.sessions.Create(mapping.ID, mapping.Login)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionToken,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	slog.Info("user logged in", "login", mapping.Login, "github_id", mapping.GithubID)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// Logout drops the session and clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		h.sessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}

// CurrentUser resolves the request's session cookie, if any.
func (h *Handler) CurrentUser(r *http.Request) (int64, string, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return 0, "", false
	}
	return h.sessions.Lookup(cookie.Value)
}
