package github

import (
	"context"
	"errors"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.github.com"

// Client is the official GitHub SDK client.
type Client = gh.Client

// newClient builds a bearer-authenticated SDK client. A non-default baseURL
// is treated as a GitHub Enterprise server.
func newClient(ctx context.Context, baseURL, token string, httpClient *http.Client) (*Client, error) {
	if token == "" {
		return nil, errors.New("github access token is required")
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	authed := oauth2.NewClient(ctx, ts)

	baseURL = normalizeBaseURL(baseURL)
	if baseURL != defaultBaseURL {
		return gh.NewEnterpriseClient(baseURL, baseURL, authed)
	}
	return gh.NewClient(authed), nil
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return defaultBaseURL
	}
	return strings.TrimRight(base, "/")
}
