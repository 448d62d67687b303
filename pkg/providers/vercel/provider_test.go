package vercel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"hookswitch/pkg/webhook"
)

func staticArgs(creds Credentials) EnableArgsFunc {
	return func(context.Context, webhook.EnableRequest) (Credentials, error) {
		return creds, nil
	}
}

const deploymentBody = `{
	"type": "deployment.succeeded",
	"id": "evt_1",
	"createdAt": 1700000000000,
	"payload": {
		"team": {"id": null},
		"user": {"id": "user_9"},
		"deployment": {"id": "dpl_1", "url": "app.vercel.app", "name": "app"},
		"target": "production",
		"project": {"id": "prj_1"}
	}
}`

func TestClassifyDeployments(t *testing.T) {
	p, err := New(Config{Events: []string{DeploymentCreated, DeploymentSucceeded, DeploymentError, DeploymentCanceled}, GetEnableArgs: staticArgs(Credentials{})})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tests := map[string]string{
		`{"type":"deployment.created"}`:   DeploymentCreated,
		`{"type":"deployment.succeeded"}`: DeploymentSucceeded,
		`{"type":"deployment.error"}`:     DeploymentError,
		`{"type":"deployment.canceled"}`:  DeploymentCanceled,
	}
	for body, want := range tests {
		payload, err := webhook.NewPayload([]byte(body))
		if err != nil {
			t.Fatalf("payload: %v", err)
		}
		if got, ok := p.Events().Classify(payload); !ok || got != want {
			t.Fatalf("%s: expected %s, got %q", body, want, got)
		}
		if matches := p.Events().Matches(payload); len(matches) != 1 {
			t.Fatalf("%s: expected one match, got %v", body, matches)
		}
	}
	payload, _ := webhook.NewPayload([]byte(`{"type":"domain.created"}`))
	if _, ok := p.Events().Classify(payload); ok {
		t.Fatalf("unexpected classification for domain.created")
	}
}

func TestParseDeployment(t *testing.T) {
	p, err := New(Config{Events: []string{DeploymentSucceeded}, GetEnableArgs: staticArgs(Credentials{})})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	payload, err := webhook.NewPayload([]byte(deploymentBody))
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	def, _ := p.Events().Lookup(DeploymentSucceeded)
	data, err := def.Parse(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	dep := data.(DeploymentPayload)
	if dep.Payload.Deployment.ID != "dpl_1" || dep.Payload.Team.ID != nil || *dep.Payload.Target != "production" {
		t.Fatalf("unexpected deployment %+v", dep)
	}
	if got := p.Actor(payload); got != "user_9" {
		t.Fatalf("expected actor user_9, got %q", got)
	}
	if !p.Verify(context.Background(), &webhook.Request{}) {
		t.Fatalf("vercel verification accepts all requests")
	}
}

func TestEnable(t *testing.T) {
	var got createWebhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/webhooks" || r.URL.Query().Get("teamId") != "team_1" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		if r.Header.Get("Authorization") != "Bearer vk" {
			t.Errorf("unexpected auth %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"hook_1","url":"x"}`))
	}))
	defer srv.Close()

	p, err := New(Config{
		Events:        []string{DeploymentSucceeded, DeploymentCreated},
		GetEnableArgs: staticArgs(Credentials{APIKey: "vk", ProjectID: "prj_1", TeamID: "team_1"}),
		BaseURL:       srv.URL,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, err := p.Enable(context.Background(), webhook.EnableRequest{UserID: "u"}, webhook.EnableTarget{WebhookURL: "https://h/webhooks/vercel"})
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !reflect.DeepEqual(got.Events, []string{"deployment.succeeded", "deployment.created"}) {
		t.Fatalf("unexpected events %v", got.Events)
	}
	if !reflect.DeepEqual(got.ProjectIDs, []string{"prj_1"}) || got.URL != "https://h/webhooks/vercel" {
		t.Fatalf("unexpected body %+v", got)
	}
	if result.HookID != "hook_1" || len(result.Raw) == 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestEnableUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	p, _ := New(Config{
		Events:        []string{DeploymentCreated},
		GetEnableArgs: staticArgs(Credentials{APIKey: "vk", ProjectID: "prj_1", TeamID: "team_1"}),
		BaseURL:       srv.URL,
	})
	_, err := p.Enable(context.Background(), webhook.EnableRequest{}, webhook.EnableTarget{WebhookURL: "https://h"})
	var upstream *webhook.UpstreamError
	if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 upstream error, got %v", err)
	}
	if !errors.Is(err, webhook.ErrUpstreamRegistration) {
		t.Fatalf("expected ErrUpstreamRegistration")
	}
}

func TestEnableRequiresCredentials(t *testing.T) {
	for _, creds := range []Credentials{
		{APIKey: "vk", TeamID: "team_1"},
		{APIKey: "vk", ProjectID: "prj_1"},
	} {
		p, _ := New(Config{Events: []string{DeploymentCreated}, GetEnableArgs: staticArgs(creds)})
		if _, err := p.Enable(context.Background(), webhook.EnableRequest{}, webhook.EnableTarget{}); err == nil {
			t.Fatalf("expected missing credential error for %+v", creds)
		}
	}
}
