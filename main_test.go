package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hookswitch/internal"
	"hookswitch/pkg/auth"
	"hookswitch/pkg/providers/github"
	"hookswitch/pkg/webhook"
)

func TestBuildProvidersDefaultsToCatalog(t *testing.T) {
	cfg := auth.Config{
		GitHub: auth.ProviderConfig{Enabled: true, Secret: "s"},
		Vercel: auth.ProviderConfig{Enabled: true, Events: []string{"deployment_created"}},
	}
	providers, err := buildProviders(cfg, auth.NewResolver(cfg), webhook.NopEnableHook)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(providers))
	}
	if got := len(providers[0].Events().Names()); got != len(github.Catalog) {
		t.Fatalf("expected full github catalog, got %d events", got)
	}
	if names := providers[1].Events().Names(); len(names) != 1 {
		t.Fatalf("expected selected vercel events, got %v", names)
	}
}

func TestBuildProvidersRequiresOne(t *testing.T) {
	if _, err := buildProviders(auth.Config{}, auth.NewResolver(auth.Config{}), webhook.NopEnableHook); err == nil {
		t.Fatalf("expected error with no providers")
	}
}

func TestMuxRoutesWebhooks(t *testing.T) {
	cfg := auth.Config{GitHub: auth.ProviderConfig{Enabled: true, Secret: "s"}}
	providers, err := buildProviders(cfg, auth.NewResolver(cfg), webhook.NopEnableHook)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var got []string
	handler := webhook.HandlerFunc(func(_ context.Context, event webhook.Event) error {
		got = append(got, event.Type)
		return nil
	})
	dispatcher, err := webhook.New(providers, handler, "https://hooks.example.com")
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	var config internal.Config
	config.Server.MetricsEnabled = true
	config.Server.MetricsPath = "/debug/vars"
	srv := httptest.NewServer(newMux(config, dispatcher, nil, nil))
	defer srv.Close()

	body := []byte(`{"ref":"refs/heads/main","head_commit":{"id":"abc"}}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/github", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.SignSHA256("s", body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(got) != 1 || got[0] != "github/push" {
		t.Fatalf("expected dispatched push, got %d %v", resp.StatusCode, got)
	}

	resp, err = http.Post(srv.URL+"/webhooks/gitea", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown provider, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/webhooks")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without storage, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/debug/vars")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", resp.StatusCode)
	}
}
