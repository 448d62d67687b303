package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"hookswitch/pkg/webhook"

	gl "github.com/xanzy/go-gitlab"
)

// Name is the provider key used in webhook URLs and event types.
const Name = "gitlab"

// TokenHeader carries the shared secret on every delivery.
const TokenHeader = "X-Gitlab-Token"

const defaultBaseURL = "https://gitlab.com/api/v4"

// Credentials are what Enable needs to add a project hook.
type Credentials struct {
	AccessToken string
	// Project is a numeric id or a "group/name" path.
	Project string
}

// EnableArgsFunc resolves credentials for an enable request.
type EnableArgsFunc func(ctx context.Context, req webhook.EnableRequest) (Credentials, error)

// Config configures the GitLab adapter.
type Config struct {
	Secret        string
	Events        []string
	GetEnableArgs EnableArgsFunc
	OnEnable      webhook.EnableHook
	BaseURL       string
	HTTPClient    *http.Client
}

// Provider is the GitLab webhook adapter.
type Provider struct {
	webhook.Base
	secret        string
	getEnableArgs EnableArgsFunc
	baseURL       string
	httpClient    *http.Client
}

var _ webhook.Provider = (*Provider)(nil)

// New builds a GitLab adapter for the given events.
func New(cfg Config) (*Provider, error) {
	if cfg.Secret == "" {
		return nil, errors.New("gitlab webhook secret is required")
	}
	if cfg.GetEnableArgs == nil {
		return nil, errors.New("gitlab enable args resolver is required")
	}
	events, err := webhook.NewEvents(Catalog, cfg.Events...)
	if err != nil {
		return nil, fmt.Errorf("gitlab events: %w", err)
	}
	return &Provider{
		Base: webhook.Base{
			ProviderName: Name,
			Selected:     events,
			Hook:         cfg.OnEnable,
		},
		secret:        cfg.Secret,
		getEnableArgs: cfg.GetEnableArgs,
		baseURL:       normalizeBaseURL(cfg.BaseURL),
		httpClient:    cfg.HTTPClient,
	}, nil
}

// Verify compares X-Gitlab-Token with the configured secret.
func (p *Provider) Verify(_ context.Context, req *webhook.Request) bool {
	return webhook.VerifyToken(p.secret, req.Header.Get(TokenHeader))
}

// RejectStatus answers unverified deliveries with 403.
func (p *Provider) RejectStatus() int { return http.StatusForbidden }

// Actor returns the username that triggered the event.
func (p *Provider) Actor(payload webhook.Payload) string {
	if name := payload.String("user_username"); name != "" {
		return name
	}
	return payload.String("user", "username")
}

// Enable adds a project hook with one flag per selected wire event.
func (p *Provider) Enable(ctx context.Context, req webhook.EnableRequest, target webhook.EnableTarget) (*webhook.EnableResult, error) {
	creds, err := p.getEnableArgs(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("gitlab enable args: %w", err)
	}
	if creds.Project == "" {
		return nil, errors.New("gitlab project is required")
	}
	client, err := p.newClient(creds.AccessToken)
	if err != nil {
		return nil, err
	}

	opts := hookOptions(p.Events().WireEvents(), target.WebhookURL, p.secret)
	hook, resp, err := client.Projects.AddProjectHook(projectID(creds.Project), opts, gl.WithContext(ctx))
	if err != nil {
		return nil, upstreamError(resp, err)
	}

	result := p.NewResult(req, target)
	if hook != nil {
		result.HookID = strconv.Itoa(hook.ID)
	}
	return result, nil
}

func (p *Provider) newClient(token string) (*gl.Client, error) {
	if token == "" {
		return nil, errors.New("gitlab access token is required")
	}
	opts := []gl.ClientOptionFunc{gl.WithBaseURL(p.baseURL)}
	if p.httpClient != nil {
		opts = append(opts, gl.WithHTTPClient(p.httpClient))
	}
	return gl.NewOAuthClient(token, opts...)
}

func hookOptions(wire []string, url, secret string) *gl.AddProjectHookOptions {
	opts := &gl.AddProjectHookOptions{
		URL:                   gl.Ptr(url),
		Token:                 gl.Ptr(secret),
		EnableSSLVerification: gl.Ptr(true),
		PushEvents:            gl.Ptr(false),
	}
	for _, name := range wire {
		switch name {
		case wirePush:
			opts.PushEvents = gl.Ptr(true)
		case wireTagPush:
			opts.TagPushEvents = gl.Ptr(true)
		case wireMergeRequests:
			opts.MergeRequestsEvents = gl.Ptr(true)
		case wirePipeline:
			opts.PipelineEvents = gl.Ptr(true)
		}
	}
	return opts
}

// projectID passes numeric ids as ints so the client does not path-escape them.
func projectID(project string) interface{} {
	if id, err := strconv.Atoi(project); err == nil {
		return id
	}
	return project
}

func upstreamError(resp *gl.Response, err error) error {
	out := &webhook.UpstreamError{Provider: Name, Err: err}
	var glErr *gl.ErrorResponse
	if errors.As(err, &glErr) {
		out.Body = glErr.Message
	}
	if resp != nil && resp.Response != nil {
		out.StatusCode = resp.StatusCode
	}
	return out
}

func normalizeBaseURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return defaultBaseURL
	}
	return base
}
