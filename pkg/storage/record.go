package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"hookswitch/pkg/webhook"
)

type enablementConfig struct {
	HookID     string   `json:"hook_id,omitempty"`
	WebhookURL string   `json:"webhook_url"`
	WireEvents []string `json:"wire_events"`
}

// RecordEnablement returns an OnEnable hook that stores one enabled row per
// logical event in the result.
func RecordEnablement(store Store) webhook.EnableHook {
	return func(ctx context.Context, result *webhook.EnableResult) error {
		if store == nil {
			return errors.New("enablement store is nil")
		}
		if result == nil {
			return errors.New("enable result is nil")
		}
		raw, err := json.Marshal(enablementConfig{
			HookID:     result.HookID,
			WebhookURL: result.WebhookURL,
			WireEvents: result.WireEvents,
		})
		if err != nil {
			return err
		}
		var errs []error
		for _, event := range result.Events {
			record := EnablementRecord{
				UserID:     result.Request.UserID,
				Provider:   result.Provider,
				AccountID:  result.Request.AccountID,
				Event:      event,
				Enabled:    true,
				ConfigJSON: string(raw),
			}
			if err := store.UpsertEnablement(ctx, record); err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", result.Provider, event, err))
			}
		}
		return errors.Join(errs...)
	}
}
