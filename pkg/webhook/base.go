package webhook

import "context"

// Base carries the parts every adapter shares. Provider packages embed it
// and add Verify and Enable.
type Base struct {
	ProviderName string
	Selected     *Events
	Hook         EnableHook
}

// Name returns the provider name.
func (b *Base) Name() string { return b.ProviderName }

// Events returns the events the adapter was built for.
func (b *Base) Events() *Events { return b.Selected }

// OnEnable forwards to the configured hook.
func (b *Base) OnEnable(ctx context.Context, result *EnableResult) error {
	if b.Hook == nil {
		return nil
	}
	return b.Hook(ctx, result)
}

// NewResult fills the fields every adapter reports after registration.
func (b *Base) NewResult(req EnableRequest, target EnableTarget) *EnableResult {
	return &EnableResult{
		Provider:   b.ProviderName,
		WebhookURL: target.WebhookURL,
		Events:     b.Selected.Names(),
		WireEvents: b.Selected.WireEvents(),
		Request:    req,
	}
}
