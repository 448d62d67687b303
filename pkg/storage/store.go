package storage

import (
	"context"
	"time"
)

// EnablementRecord stores one enabled logical event for a user's account
// on a provider.
type EnablementRecord struct {
	UserID     string    `json:"user_id"`
	Provider   string    `json:"provider"`
	AccountID  string    `json:"account_id"`
	Event      string    `json:"event"`
	Enabled    bool      `json:"enabled"`
	ConfigJSON string    `json:"config_json"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EnablementFilter selects enablement rows. Empty fields match everything.
type EnablementFilter struct {
	UserID    string
	Provider  string
	AccountID string
	Event     string
}

// Store defines the persistence interface for webhook enablements.
type Store interface {
	UpsertEnablement(ctx context.Context, record EnablementRecord) error
	GetEnablement(ctx context.Context, userID, provider, accountID, event string) (*EnablementRecord, error)
	ListEnablements(ctx context.Context, filter EnablementFilter) ([]EnablementRecord, error)
	Close() error
}
