package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Response bodies written by the inbound pipeline.
const (
	BodyProviderNotFound = "Webhook provider not found"
	BodyInvalidWebhook   = "Invalid webhook"
	BodyInvalidPayload   = "Invalid webhook payload"
	BodyEventNotFound    = "Webhook event not found"
	BodyEventAmbiguous   = "Webhook event is ambiguous"
	BodyInternalError    = "Internal server error"
)

const requestIDHeader = "X-Request-Id"

// Dispatcher routes inbound webhooks to a single Handler and registers
// webhooks with providers. Its registry is fixed at construction.
type Dispatcher struct {
	providers map[string]Provider
	handler   Handler
	baseURL   string

	logger       *slog.Logger
	observer     Observer
	maxBody      int64
	strict       bool
	debugPayload bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver sets the outcome observer.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		if observer != nil {
			d.observer = observer
		}
	}
}

// WithMaxBodyBytes caps inbound bodies. Zero or less disables the cap.
func WithMaxBodyBytes(n int64) Option {
	return func(d *Dispatcher) {
		d.maxBody = n
	}
}

// WithStrictClassification rejects payloads matched by more than one event.
func WithStrictClassification(strict bool) Option {
	return func(d *Dispatcher) {
		d.strict = strict
	}
}

// WithDebugPayloads logs raw payloads at debug level.
func WithDebugPayloads(enabled bool) Option {
	return func(d *Dispatcher) {
		d.debugPayload = enabled
	}
}

// New builds a Dispatcher. baseURL is the public origin providers call back,
// e.g. "https://hooks.example.com".
func New(providers []Provider, handler Handler, baseURL string, opts ...Option) (*Dispatcher, error) {
	if handler == nil {
		return nil, errors.New("event handler is required")
	}
	d := &Dispatcher{
		providers: make(map[string]Provider, len(providers)),
		handler:   handler,
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:    slog.Default(),
		observer:  nopObserver{},
	}
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("provider is nil")
		}
		name := p.Name()
		if name == "" {
			return nil, errors.New("provider name is required")
		}
		if p.Events() == nil {
			return nil, fmt.Errorf("provider %s has no events", name)
		}
		if _, exists := d.providers[name]; exists {
			return nil, fmt.Errorf("provider %s registered twice", name)
		}
		d.providers[name] = p
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Provider returns the adapter registered under name.
func (d *Dispatcher) Provider(name string) (Provider, bool) {
	p, ok := d.providers[name]
	return p, ok
}

// WebhookURL is the callback URL registered for provider.
func (d *Dispatcher) WebhookURL(provider string) string {
	return d.baseURL + "/webhooks/" + provider
}

// ServeHTTP runs the inbound pipeline: resolve, verify, parse, classify,
// dispatch, respond.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, reqID)

	name := providerName(r)
	logger := d.logger.With("request_id", reqID, "provider", name)

	provider, ok := d.providers[name]
	if !ok {
		logger.Warn("webhook provider not found")
		d.finish(w, Outcome{Provider: name, Stage: StageNotFound, Status: http.StatusNotFound}, BodyProviderNotFound)
		return
	}

	body := r.Body
	if d.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, d.maxBody)
	}
	rawBody, err := io.ReadAll(body)
	if err != nil {
		logger.Error("read webhook body failed", "error", err)
		d.finish(w, Outcome{Provider: name, Stage: StageUnverified, Status: http.StatusBadRequest}, BodyInvalidWebhook)
		return
	}

	if d.debugPayload {
		logger.Debug("webhook received", "payload", string(rawBody))
	}

	d.dispatch(r.Context(), w, logger, provider, r.Header, rawBody, reqID)
}

func (d *Dispatcher) dispatch(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, provider Provider, header http.Header, rawBody []byte, reqID string) {
	name := provider.Name()
	outcome := Outcome{Provider: name}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("webhook handler panicked", "panic", fmt.Sprint(rec))
			outcome.Stage = StageHandlerError
			outcome.Status = http.StatusInternalServerError
			d.finish(w, outcome, BodyInternalError)
		}
	}()

	view := &Request{
		Provider: name,
		Header:   header.Clone(),
		Body:     append([]byte(nil), rawBody...),
	}
	if !provider.Verify(ctx, view) {
		status := http.StatusBadRequest
		if rs, ok := provider.(RejectStatuser); ok && rs.RejectStatus() != 0 {
			status = rs.RejectStatus()
		}
		logger.Warn("webhook verification failed")
		outcome.Stage = StageUnverified
		outcome.Status = status
		d.finish(w, outcome, BodyInvalidWebhook)
		return
	}

	payload, err := NewPayload(rawBody)
	if err != nil {
		logger.Error("webhook payload parse failed", "error", err)
		outcome.Stage = StageMalformed
		outcome.Status = http.StatusBadRequest
		d.finish(w, outcome, BodyInvalidPayload)
		return
	}

	eventName, err := d.classify(provider, payload)
	if err != nil {
		logger.Error("webhook event not classified", "error", err)
		outcome.Status = http.StatusBadRequest
		body := BodyEventNotFound
		outcome.Stage = StageUnclassified
		if errors.Is(err, ErrAmbiguousEvent) {
			body = BodyEventAmbiguous
			outcome.Stage = StageAmbiguous
		}
		d.finish(w, outcome, body)
		return
	}
	outcome.Event = eventName

	def, _ := provider.Events().Lookup(eventName)
	data, err := def.Parse(payload)
	if err != nil {
		logger.Error("webhook payload decode failed", "event", eventName, "error", err)
		outcome.Stage = StageMalformed
		outcome.Status = http.StatusBadRequest
		d.finish(w, outcome, BodyInvalidPayload)
		return
	}

	event := Event{
		Type:      EventType(name, eventName),
		Provider:  name,
		Name:      eventName,
		Data:      data,
		Raw:       payload.Raw,
		RequestID: reqID,
	}
	attrs := []interface{}{"event_type", event.Type}
	if ar, ok := provider.(ActorResolver); ok {
		if actor := ar.Actor(payload); actor != "" {
			attrs = append(attrs, "actor", actor)
		}
	}
	logger = logger.With(attrs...)

	if err := d.handler.HandleEvent(ctx, event); err != nil {
		logger.Error("webhook handler failed", "error", err)
		outcome.Stage = StageHandlerError
		outcome.Status = http.StatusInternalServerError
		d.finish(w, outcome, BodyInternalError)
		return
	}

	logger.Info("webhook dispatched")
	outcome.Stage = StageDispatched
	outcome.Status = http.StatusOK
	d.finish(w, outcome, fmt.Sprintf("Thank you for your webhook %s!", name))
}

func (d *Dispatcher) classify(provider Provider, payload Payload) (string, error) {
	events := provider.Events()
	if d.strict {
		matches := events.Matches(payload)
		switch len(matches) {
		case 0:
			return "", ErrUnclassifiedEvent
		case 1:
			return matches[0], nil
		default:
			return "", fmt.Errorf("%w: %s", ErrAmbiguousEvent, strings.Join(matches, ", "))
		}
	}
	name, ok := events.Classify(payload)
	if !ok {
		return "", ErrUnclassifiedEvent
	}
	return name, nil
}

// Classify runs the classification step alone against body.
func (d *Dispatcher) Classify(provider string, body []byte) (string, error) {
	p, ok := d.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrProviderNotFound, provider)
	}
	payload, err := NewPayload(body)
	if err != nil {
		return "", err
	}
	return d.classify(p, payload)
}

// EnableWebhook registers the provider's webhook and hands the result to the
// provider's OnEnable. If Enable fails, OnEnable is not called and the error
// is returned unchanged.
func (d *Dispatcher) EnableWebhook(ctx context.Context, provider string, req EnableRequest) (*EnableResult, error) {
	p, ok := d.providers[provider]
	if !ok {
		d.observer.Observe(Outcome{Provider: provider, Stage: StageNotFound, Status: http.StatusNotFound})
		return nil, fmt.Errorf("provider %s not found: %w", provider, ErrProviderNotFound)
	}
	logger := d.logger.With("provider", provider, "user_id", req.UserID, "account_id", req.AccountID)

	result, err := p.Enable(ctx, req, EnableTarget{WebhookURL: d.WebhookURL(provider)})
	if err != nil {
		logger.Error("webhook enable failed", "error", err)
		d.observer.Observe(Outcome{Provider: provider, Stage: StageEnableFailed})
		return nil, err
	}
	if err := p.OnEnable(ctx, result); err != nil {
		logger.Error("webhook on-enable failed", "error", err)
		d.observer.Observe(Outcome{Provider: provider, Stage: StageEnableFailed})
		return result, fmt.Errorf("%s on enable: %w", provider, err)
	}
	logger.Info("webhook enabled", "events", result.Events, "webhook_url", result.WebhookURL)
	d.observer.Observe(Outcome{Provider: provider, Stage: StageEnabled})
	return result, nil
}

func (d *Dispatcher) finish(w http.ResponseWriter, outcome Outcome, body string) {
	d.observer.Observe(outcome)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(outcome.Status)
	_, _ = io.WriteString(w, body)
}

func providerName(r *http.Request) string {
	if name := r.PathValue("provider"); name != "" {
		return name
	}
	path := strings.TrimRight(r.URL.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
