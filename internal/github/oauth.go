package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OAuth drives the GitHub web application flow: build the authorize URL,
// then exchange the callback code for an access token.
type OAuth struct {
	AuthorizeURL string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string

	httpClient *http.Client
}

func NewOAuth(authorizeURL, tokenURL, clientID, clientSecret, redirectURI, scope string) *OAuth {
	if authorizeURL == "" {
		authorizeURL = "https://github.com/login/oauth/authorize"
	}
	if tokenURL == "" {
		tokenURL = "https://github.com/login/oauth/access_token"
	}
	if scope == "" {
		scope = "read:user user:email"
	}
	return &OAuth{
		AuthorizeURL: authorizeURL,
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Scope:        scope,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// AuthCodeURL returns the URL to redirect the browser to, carrying the
// anti-forgery state token.
func (o *OAuth) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", o.ClientID)
	q.Set("redirect_uri", o.RedirectURI)
	q.Set("scope", o.Scope)
	q.Set("state", state)
	return o.AuthorizeURL + "?" + q.Encode()
}

// ExchangeCode trades the callback code for an access token.
func (o *OAuth) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", o.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("exchange code: status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken      string `json:"access_token"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.Error != "" {
		return "", fmt.Errorf("oauth error: %s: %s", body.Error, body.ErrorDescription)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("oauth response missing access token")
	}
	return body.AccessToken, nil
}
