// Package github is a minimal REST client for the GitHub v3 API, covering
// only the endpoints the review hub needs.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pr-review-hub/internal/metrics"
)

const (
	DefaultAPIBase = "https://api.github.com"

	metadataTimeout = 30 * time.Second
	diffTimeout     = 60 * time.Second

	// Diffs for huge PRs can get large; cap what we are willing to read.
	maxDiffBytes = 10 << 20
)

// User is the subset of a GitHub account the hub stores.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// PullRequest mirrors the fields of the REST pulls payload the hub syncs.
type PullRequest struct {
	ID     int64  `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	User   User   `json:"user"`
	Head   struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at"`
	MergedAt  *time.Time `json:"merged_at"`
}

// File is one changed file in a PR.
type File struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

type Client struct {
	apiBase    string
	httpClient *http.Client
}

func NewClient(apiBase string) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		apiBase:    strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{},
	}
}

// do issues an authenticated request and decodes the JSON body into out.
// A nil out discards the body.
func (c *Client) do(ctx context.Context, token, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GithubAPIErrors.WithLabelValues("network").Inc()
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.GithubAPIErrors.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) GetPullRequest(ctx context.Context, token, fullName string, number int) (*PullRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	var pr PullRequest
	if err := c.do(ctx, token, http.MethodGet,
		fmt.Sprintf("/repos/%s/pulls/%d", fullName, number), nil, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// ListPullRequests returns up to 100 PRs in the given state
// ("open", "closed" or "all").
func (c *Client) ListPullRequests(ctx context.Context, token, fullName, state string) ([]PullRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	var prs []PullRequest
	if err := c.do(ctx, token, http.MethodGet,
		fmt.Sprintf("/repos/%s/pulls?state=%s&per_page=100", fullName, state), nil, &prs); err != nil {
		return nil, err
	}
	return prs, nil
}

func (c *Client) GetFiles(ctx context.Context, token, fullName string, number int) ([]File, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	var files []File
	if err := c.do(ctx, token, http.MethodGet,
		fmt.Sprintf("/repos/%s/pulls/%d/files?per_page=100", fullName, number), nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// GetDiff fetches the unified diff of a PR using the diff media type.
func (c *Client) GetDiff(ctx context.Context, token, fullName string, number int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, diffTimeout)
	defer cancel()

	path := fmt.Sprintf("/repos/%s/pulls/%d", fullName, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3.diff")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GithubAPIErrors.WithLabelValues("network").Inc()
		return "", fmt.Errorf("fetch diff: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.GithubAPIErrors.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		return "", fmt.Errorf("fetch diff: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDiffBytes))
	if err != nil {
		return "", fmt.Errorf("read diff: %w", err)
	}
	return string(data), nil
}

// PostComment posts a general comment on the PR conversation thread.
func (c *Client) PostComment(ctx context.Context, token, fullName string, number int, body string) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	return c.do(ctx, token, http.MethodPost,
		fmt.Sprintf("/repos/%s/issues/%d/comments", fullName, number),
		map[string]string{"body": body}, nil)
}

// CreateWebhook registers a push + pull_request webhook on the repository
// and returns the hook ID.
func (c *Client) CreateWebhook(ctx context.Context, token, fullName, hookURL, secret string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	payload := map[string]any{
		"name":   "web",
		"active": true,
		"events": []string{"pull_request", "pull_request_review", "push"},
		"config": map[string]string{
			"url":          hookURL,
			"content_type": "json",
			"secret":       secret,
			"insecure_ssl": "0",
		},
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, token, http.MethodPost,
		fmt.Sprintf("/repos/%s/hooks", fullName), payload, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// GetAuthenticatedUser returns the account behind the given OAuth token.
func (c *Client) GetAuthenticatedUser(ctx context.Context, token string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	var user User
	if err := c.do(ctx, token, http.MethodGet, "/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
