package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Request is an independent view of an inbound webhook request. Verifiers
// read Body freely; the dispatcher parses its own copy.
type Request struct {
	Provider string
	Header   http.Header
	Body     []byte
}

// EnableRequest identifies who a webhook is enabled for. Params carries
// provider-specific targets such as a repository or project id.
type EnableRequest struct {
	UserID    string            `json:"user_id"`
	AccountID string            `json:"account_id"`
	Params    map[string]string `json:"params,omitempty"`
}

// Param returns a trimmed parameter value.
func (r EnableRequest) Param(key string) string {
	if r.Params == nil {
		return ""
	}
	return strings.TrimSpace(r.Params[key])
}

// EnableTarget is where the provider should deliver webhooks.
type EnableTarget struct {
	WebhookURL string
}

// EnableResult is a provider's registration response.
type EnableResult struct {
	Provider   string          `json:"provider"`
	HookID     string          `json:"hook_id,omitempty"`
	WebhookURL string          `json:"webhook_url"`
	Events     []string        `json:"events"`
	WireEvents []string        `json:"wire_events"`
	Request    EnableRequest   `json:"request"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// EnableHook reacts to a successful registration, typically by persisting it.
type EnableHook func(ctx context.Context, result *EnableResult) error

// NopEnableHook ignores the result.
func NopEnableHook(context.Context, *EnableResult) error { return nil }

// Provider is the contract every webhook provider adapter satisfies.
type Provider interface {
	Name() string
	// Verify reports whether req is authentic. It must not return true for a
	// missing or mismatched signature on signature-based providers.
	Verify(ctx context.Context, req *Request) bool
	// Enable registers a webhook subscription with the provider's API.
	Enable(ctx context.Context, req EnableRequest, target EnableTarget) (*EnableResult, error)
	// OnEnable is called once after a successful Enable.
	OnEnable(ctx context.Context, result *EnableResult) error
	Events() *Events
}

// RejectStatuser is implemented by providers that answer failed verification
// with a status other than 400.
type RejectStatuser interface {
	RejectStatus() int
}

// ActorResolver is implemented by providers that can name who triggered an event.
type ActorResolver interface {
	Actor(Payload) string
}

// Event is handed to the application handler for every classified request.
type Event struct {
	// Type is "<provider>/<event>".
	Type     string
	Provider string
	Name     string
	// Data is the value returned by the event definition's Parse.
	Data interface{}
	Raw  json.RawMessage
	// RequestID correlates the event with the inbound request.
	RequestID string
}

// Handler receives dispatched events.
type Handler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// EventType joins a provider and event name.
func EventType(provider, event string) string {
	return provider + "/" + event
}
