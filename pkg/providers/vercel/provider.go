package vercel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"hookswitch/pkg/providers/internal/rest"
	"hookswitch/pkg/webhook"
)

// Name is the provider key used in webhook URLs and event types.
const Name = "vercel"

const defaultBaseURL = "https://api.vercel.com"

// Credentials are what Enable needs to create a project webhook.
type Credentials struct {
	APIKey    string
	ProjectID string
	TeamID    string
}

// EnableArgsFunc resolves credentials for an enable request.
type EnableArgsFunc func(ctx context.Context, req webhook.EnableRequest) (Credentials, error)

// Config configures the Vercel adapter.
type Config struct {
	Secret        string
	Events        []string
	GetEnableArgs EnableArgsFunc
	OnEnable      webhook.EnableHook
	BaseURL       string
	HTTPClient    *http.Client
}

// Provider is the Vercel webhook adapter.
type Provider struct {
	webhook.Base
	// secret is kept for signature verification once it is implemented.
	secret        string
	getEnableArgs EnableArgsFunc
	baseURL       string
	httpClient    *http.Client
}

var _ webhook.Provider = (*Provider)(nil)

// New builds a Vercel adapter for the given events.
func New(cfg Config) (*Provider, error) {
	if cfg.GetEnableArgs == nil {
		return nil, errors.New("vercel enable args resolver is required")
	}
	events, err := webhook.NewEvents(Catalog, cfg.Events...)
	if err != nil {
		return nil, fmt.Errorf("vercel events: %w", err)
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Provider{
		Base: webhook.Base{
			ProviderName: Name,
			Selected:     events,
			Hook:         cfg.OnEnable,
		},
		secret:        cfg.Secret,
		getEnableArgs: cfg.GetEnableArgs,
		baseURL:       base,
		httpClient:    cfg.HTTPClient,
	}, nil
}

// Verify accepts every request.
// TODO: check x-vercel-signature (HMAC-SHA1 of the body with the integration secret).
func (p *Provider) Verify(context.Context, *webhook.Request) bool {
	return true
}

// Actor returns the Vercel user id that triggered the deployment.
func (p *Provider) Actor(payload webhook.Payload) string {
	return payload.String("payload", "user", "id")
}

type createWebhookRequest struct {
	URL        string   `json:"url"`
	Events     []string `json:"events"`
	ProjectIDs []string `json:"projectIds"`
}

type createWebhookResponse struct {
	ID string `json:"id"`
}

// Enable registers a project webhook through the Vercel REST API.
func (p *Provider) Enable(ctx context.Context, req webhook.EnableRequest, target webhook.EnableTarget) (*webhook.EnableResult, error) {
	creds, err := p.getEnableArgs(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vercel enable args: %w", err)
	}
	if creds.APIKey == "" || creds.ProjectID == "" || creds.TeamID == "" {
		return nil, errors.New("vercel api key, project id and team id are required")
	}

	path := "/v1/webhooks?" + url.Values{"teamId": {creds.TeamID}}.Encode()
	body := createWebhookRequest{
		URL:        target.WebhookURL,
		Events:     p.Events().WireEvents(),
		ProjectIDs: []string{creds.ProjectID},
	}
	var created createWebhookResponse
	client := rest.New(Name, p.baseURL, creds.APIKey, p.httpClient)
	raw, err := client.Do(ctx, http.MethodPost, path, body, &created)
	if err != nil {
		return nil, err
	}

	result := p.NewResult(req, target)
	result.HookID = created.ID
	result.Raw = raw
	return result, nil
}
