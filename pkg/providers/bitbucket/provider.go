package bitbucket

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
const Name = "bitbucket"

// SignatureHeader carries the sha256= HMAC of the body.
const SignatureHeader = "X-Hub-Signature"

const defaultBaseURL = "https://api.bitbucket.org/2.0"

// Credentials are what Enable needs to add a repository hook.
type Credentials struct {
	AccessToken string
	Workspace   string
	Repository  string
}

// EnableArgsFunc resolves credentials for an enable request.
type EnableArgsFunc func(ctx context.Context, req webhook.EnableRequest) (Credentials, error)

// Config configures the Bitbucket adapter.
type Config struct {
	Secret        string
	Events        []string
	GetEnableArgs EnableArgsFunc
	OnEnable      webhook.EnableHook
	BaseURL       string
	HTTPClient    *http.Client
}

// Provider is the Bitbucket Cloud webhook adapter.
type Provider struct {
	webhook.Base
	secret        string
	getEnableArgs EnableArgsFunc
	baseURL       string
	httpClient    *http.Client
}

var _ webhook.Provider = (*Provider)(nil)

// New builds a Bitbucket adapter for the given events.
func New(cfg Config) (*Provider, error) {
	if cfg.Secret == "" {
		return nil, errors.New("bitbucket webhook secret is required")
	}
	if cfg.GetEnableArgs == nil {
		return nil, errors.New("bitbucket enable args resolver is required")
	}
	events, err := webhook.NewEvents(Catalog, cfg.Events...)
	if err != nil {
		return nil, fmt.Errorf("bitbucket events: %w", err)
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

// Verify checks X-Hub-Signature against the body.
func (p *Provider) Verify(_ context.Context, req *webhook.Request) bool {
	return webhook.VerifySHA256Signature(p.secret, req.Body, req.Header.Get(SignatureHeader))
}

// Actor returns the account nickname of the actor.
func (p *Provider) Actor(payload webhook.Payload) string {
	return payload.String("actor", "nickname")
}

type hook struct {
	UUID        string   `json:"uuid,omitempty"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Active      bool     `json:"active"`
	Secret      string   `json:"secret,omitempty"`
	Events      []string `json:"events"`
}

type hookPage struct {
	Values []hook `json:"values"`
	Next   string `json:"next"`
}

// Enable adds a repository hook. A hook already targeting the same URL is
// updated in place so its events, secret and active flag match this adapter.
func (p *Provider) Enable(ctx context.Context, req webhook.EnableRequest, target webhook.EnableTarget) (*webhook.EnableResult, error) {
	creds, err := p.getEnableArgs(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bitbucket enable args: %w", err)
	}
	if creds.Workspace == "" || creds.Repository == "" {
		return nil, errors.New("bitbucket workspace/repository missing")
	}
	if creds.AccessToken == "" {
		return nil, errors.New("bitbucket access token is required")
	}

	client := rest.New(Name, p.baseURL, creds.AccessToken, p.httpClient)
	hooksPath := fmt.Sprintf("/repositories/%s/%s/hooks", url.PathEscape(creds.Workspace), url.PathEscape(creds.Repository))

	existing, err := findHook(ctx, client, hooksPath, target.WebhookURL)
	if err != nil {
		return nil, err
	}

	body := hook{
		Description: "hookswitch",
		URL:         target.WebhookURL,
		Active:      true,
		Secret:      p.secret,
		Events:      p.Events().WireEvents(),
	}
	method, path := http.MethodPost, hooksPath
	if existing != nil {
		method, path = http.MethodPut, hooksPath+"/"+url.PathEscape(existing.UUID)
	}

	var saved hook
	raw, err := client.Do(ctx, method, path, body, &saved)
	if err != nil {
		return nil, err
	}
	result := p.NewResult(req, target)
	result.HookID = saved.UUID
	if result.HookID == "" && existing != nil {
		result.HookID = existing.UUID
	}
	result.Raw = raw
	return result, nil
}

// findHook walks every page of the repository's hooks.
func findHook(ctx context.Context, client *rest.Client, hooksPath, webhookURL string) (*hook, error) {
	next := hooksPath
	for next != "" {
		var page hookPage
		if _, err := client.Do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		for i := range page.Values {
			if page.Values[i].URL == webhookURL {
				return &page.Values[i], nil
			}
		}
		next = page.Next
	}
	return nil, nil
}
