package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"hookswitch/pkg/auth"
	"hookswitch/pkg/storage"
	"hookswitch/pkg/webhook"
)

const maxRequestBytes = 1 << 20

// Enabler registers webhooks with a provider. *webhook.Dispatcher implements it.
type Enabler interface {
	EnableWebhook(ctx context.Context, provider string, req webhook.EnableRequest) (*webhook.EnableResult, error)
}

type enableRequest struct {
	Provider  string            `json:"provider"`
	UserID    string            `json:"user_id"`
	AccountID string            `json:"account_id"`
	Params    map[string]string `json:"params"`
}

// EnableHandler registers a webhook on behalf of a user.
type EnableHandler struct {
	Enabler Enabler
	Logger  *slog.Logger
}

func (h *EnableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body enableRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	body.Provider = strings.ToLower(strings.TrimSpace(body.Provider))
	body.UserID = strings.TrimSpace(body.UserID)
	if body.Provider == "" {
		http.Error(w, "missing provider", http.StatusBadRequest)
		return
	}
	if body.UserID == "" {
		http.Error(w, "missing user_id", http.StatusBadRequest)
		return
	}

	logger := h.logger().With("provider", body.Provider, "user_id", body.UserID)
	result, err := h.Enabler.EnableWebhook(r.Context(), body.Provider, webhook.EnableRequest{
		UserID:    body.UserID,
		AccountID: strings.TrimSpace(body.AccountID),
		Params:    body.Params,
	})
	if err != nil {
		status, msg := enableStatus(err)
		logger.Error("enable webhook failed", "status", status, "error", err)
		http.Error(w, msg, status)
		return
	}
	logger.Info("webhook enabled", "hook_id", result.HookID, "events", result.Events)
	writeJSON(w, result)
}

func (h *EnableHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// enableStatus maps an enable failure to a status and a fixed message.
// Upstream response bodies stay in the log.
func enableStatus(err error) (int, string) {
	var upstream *webhook.UpstreamError
	switch {
	case errors.Is(err, webhook.ErrProviderNotFound):
		return http.StatusNotFound, "provider not found"
	case errors.Is(err, auth.ErrMissingCredential):
		return http.StatusBadRequest, "missing credential"
	case errors.As(err, &upstream):
		return http.StatusBadGateway, "provider rejected the webhook registration"
	default:
		return http.StatusInternalServerError, "enable webhook failed"
	}
}

// EnablementsHandler lists stored enablements.
type EnablementsHandler struct {
	Store  storage.Store
	Logger *slog.Logger
}

func (h *EnablementsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Store == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}
	query := r.URL.Query()
	filter := storage.EnablementFilter{
		UserID:    strings.TrimSpace(query.Get("user_id")),
		Provider:  strings.TrimSpace(query.Get("provider")),
		AccountID: strings.TrimSpace(query.Get("account_id")),
		Event:     strings.TrimSpace(query.Get("event")),
	}
	records, err := h.Store.ListEnablements(r.Context(), filter)
	if err != nil {
		http.Error(w, "list enablements failed", http.StatusInternalServerError)
		if h.Logger != nil {
			h.Logger.Error("list enablements failed", "error", err)
		}
		return
	}
	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
