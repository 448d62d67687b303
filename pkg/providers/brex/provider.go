package brex

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"hookswitch/pkg/providers/internal/rest"
	"hookswitch/pkg/webhook"
)

// Name is the provider key used in webhook URLs and event types.
const Name = "brex"

const defaultBaseURL = "https://platform.brexapis.com"

// Credentials are what Enable needs to register a Brex webhook.
type Credentials struct {
	APIKey string
}

// EnableArgsFunc resolves credentials for an enable request.
type EnableArgsFunc func(ctx context.Context, req webhook.EnableRequest) (Credentials, error)

// Config configures the Brex adapter. Secret doubles as the registration
// idempotency key.
type Config struct {
	Secret        string
	Events        []string
	GetEnableArgs EnableArgsFunc
	OnEnable      webhook.EnableHook
	BaseURL       string
	HTTPClient    *http.Client
}

// Provider is the Brex webhook adapter.
type Provider struct {
	webhook.Base
	secret        string
	getEnableArgs EnableArgsFunc
	baseURL       string
	httpClient    *http.Client
}

var _ webhook.Provider = (*Provider)(nil)

// New builds a Brex adapter for the given events.
func New(cfg Config) (*Provider, error) {
	if cfg.Secret == "" {
		return nil, errors.New("brex webhook secret is required")
	}
	if cfg.GetEnableArgs == nil {
		return nil, errors.New("brex enable args resolver is required")
	}
	events, err := webhook.NewEvents(Catalog, cfg.Events...)
	if err != nil {
		return nil, fmt.Errorf("brex events: %w", err)
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
// TODO: validate the Webhook-Signature header against the secret from GET /v1/webhooks/secrets.
func (p *Provider) Verify(context.Context, *webhook.Request) bool {
	return true
}

type createWebhookRequest struct {
	EventTypes []string `json:"event_types"`
	URL        string   `json:"url"`
}

type createWebhookResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Enable registers a webhook subscription for the selected event types.
func (p *Provider) Enable(ctx context.Context, req webhook.EnableRequest, target webhook.EnableTarget) (*webhook.EnableResult, error) {
	creds, err := p.getEnableArgs(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("brex enable args: %w", err)
	}
	if creds.APIKey == "" {
		return nil, errors.New("brex api key is required")
	}

	client := rest.New(Name, p.baseURL, creds.APIKey, p.httpClient)
	client.Header.Set("Idempotency-Key", p.secret)
	body := createWebhookRequest{
		EventTypes: p.Events().WireEvents(),
		URL:        target.WebhookURL,
	}
	var created createWebhookResponse
	raw, err := client.Do(ctx, http.MethodPost, "/v1/webhooks", body, &created)
	if err != nil {
		return nil, err
	}

	result := p.NewResult(req, target)
	result.HookID = created.ID
	result.Raw = raw
	return result, nil
}
