package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"hookswitch/pkg/webhook"

	gh "github.com/google/go-github/v57/github"
)

// Name is the provider key used in webhook URLs and event types.
const Name = "github"

// Credentials are what Enable needs to create a repository hook.
type Credentials struct {
	AccessToken string
	// Repository is "owner/name".
	Repository string
}

// EnableArgsFunc resolves credentials for an enable request.
type EnableArgsFunc func(ctx context.Context, req webhook.EnableRequest) (Credentials, error)

// Config configures the GitHub adapter.
type Config struct {
	// Secret signs deliveries and is registered with every hook.
	Secret        string
	Events        []string
	GetEnableArgs EnableArgsFunc
	OnEnable      webhook.EnableHook
	// BaseURL targets GitHub Enterprise; empty means api.github.com.
	BaseURL    string
	HTTPClient *http.Client
}

// Provider is the GitHub webhook adapter.
type Provider struct {
	webhook.Base
	secret        string
	getEnableArgs EnableArgsFunc
	baseURL       string
	httpClient    *http.Client
}

var _ webhook.Provider = (*Provider)(nil)

// New builds a GitHub adapter for the given events.
func New(cfg Config) (*Provider, error) {
	if cfg.Secret == "" {
		return nil, errors.New("github webhook secret is required")
	}
	if cfg.GetEnableArgs == nil {
		return nil, errors.New("github enable args resolver is required")
	}
	events, err := webhook.NewEvents(Catalog, cfg.Events...)
	if err != nil {
		return nil, fmt.Errorf("github events: %w", err)
	}
	return &Provider{
		Base: webhook.Base{
			ProviderName: Name,
			Selected:     events,
			Hook:         cfg.OnEnable,
		},
		secret:        cfg.Secret,
		getEnableArgs: cfg.GetEnableArgs,
		baseURL:       cfg.BaseURL,
		httpClient:    cfg.HTTPClient,
	}, nil
}

// Verify checks X-Hub-Signature-256 against the body.
func (p *Provider) Verify(_ context.Context, req *webhook.Request) bool {
	return webhook.VerifySHA256Signature(p.secret, req.Body, req.Header.Get(webhook.SignatureHeader))
}

// Actor returns the sender login.
func (p *Provider) Actor(payload webhook.Payload) string {
	return payload.String("sender", "login")
}

type hookConfig struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Secret      string `json:"secret"`
	InsecureSSL string `json:"insecure_ssl"`
}

type createHookRequest struct {
	Name   string     `json:"name"`
	Active bool       `json:"active"`
	Events []string   `json:"events"`
	Config hookConfig `json:"config"`
}

// Enable creates a repository webhook pointing at target.
func (p *Provider) Enable(ctx context.Context, req webhook.EnableRequest, target webhook.EnableTarget) (*webhook.EnableResult, error) {
	creds, err := p.getEnableArgs(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("github enable args: %w", err)
	}
	owner, repo, err := splitRepository(creds.Repository)
	if err != nil {
		return nil, err
	}
	client, err := newClient(ctx, p.baseURL, creds.AccessToken, p.httpClient)
	if err != nil {
		return nil, err
	}

	wire := p.Events().WireEvents()
	body := createHookRequest{
		Name:   "web",
		Active: true,
		Events: wire,
		Config: hookConfig{
			URL:         target.WebhookURL,
			ContentType: "json",
			Secret:      p.secret,
			InsecureSSL: "0",
		},
	}
	httpReq, err := client.NewRequest(http.MethodPost, fmt.Sprintf("repos/%s/%s/hooks", owner, repo), body)
	if err != nil {
		return nil, err
	}
	hook := new(gh.Hook)
	resp, err := client.Do(ctx, httpReq, hook)
	if err != nil {
		return nil, upstreamError(resp, err)
	}

	result := p.NewResult(req, target)
	if hook.ID != nil {
		result.HookID = strconv.FormatInt(hook.GetID(), 10)
	}
	return result, nil
}

func upstreamError(resp *gh.Response, err error) error {
	out := &webhook.UpstreamError{Provider: Name, Err: err}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) {
		out.Body = ghErr.Message
	}
	if resp != nil && resp.Response != nil {
		out.StatusCode = resp.StatusCode
	}
	return out
}

func splitRepository(full string) (string, string, error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(full), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("github repository must be owner/name, got %q", full)
	}
	return owner, repo, nil
}
