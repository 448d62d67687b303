package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hookswitch/pkg/webhook"

	glpayload "github.com/go-playground/webhooks/v6/gitlab"
)

const testSecret = "gl-secret"

func newTestProvider(t *testing.T, baseURL, project string, events ...string) *Provider {
	t.Helper()
	p, err := New(Config{
		Secret: testSecret,
		Events: events,
		GetEnableArgs: func(context.Context, webhook.EnableRequest) (Credentials, error) {
			return Credentials{AccessToken: "glpat", Project: project}, nil
		},
		BaseURL: baseURL,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return p
}

func TestVerifyToken(t *testing.T) {
	p := newTestProvider(t, "", "1", Push)
	header := http.Header{}
	header.Set(TokenHeader, testSecret)
	if !p.Verify(context.Background(), &webhook.Request{Header: header}) {
		t.Fatalf("expected token to verify")
	}
	header.Set(TokenHeader, "wrong")
	if p.Verify(context.Background(), &webhook.Request{Header: header}) {
		t.Fatalf("expected wrong token to fail")
	}
	if p.RejectStatus() != http.StatusForbidden {
		t.Fatalf("expected 403 reject status")
	}
}

func TestClassify(t *testing.T) {
	p := newTestProvider(t, "", "1", Push, TagPush, MergeRequestOpened, MergeRequestMerged, Pipeline)
	tests := []struct {
		body string
		want string
	}{
		{body: `{"object_kind":"push","ref":"refs/heads/main","user_username":"root"}`, want: Push},
		{body: `{"object_kind":"tag_push","ref":"refs/tags/v1"}`, want: TagPush},
		{body: `{"object_kind":"merge_request","object_attributes":{"action":"open","iid":3}}`, want: MergeRequestOpened},
		{body: `{"object_kind":"merge_request","object_attributes":{"action":"merge","iid":3}}`, want: MergeRequestMerged},
		{body: `{"object_kind":"pipeline","object_attributes":{"id":31}}`, want: Pipeline},
	}
	for _, tt := range tests {
		payload, err := webhook.NewPayload([]byte(tt.body))
		if err != nil {
			t.Fatalf("payload: %v", err)
		}
		got, ok := p.Events().Classify(payload)
		if !ok || got != tt.want {
			t.Fatalf("%s: expected %s, got %q", tt.body, tt.want, got)
		}
		if matches := p.Events().Matches(payload); len(matches) != 1 {
			t.Fatalf("%s: expected unique match, got %v", tt.body, matches)
		}
		def, _ := p.Events().Lookup(got)
		if _, err := def.Parse(payload); err != nil {
			t.Fatalf("%s parse: %v", got, err)
		}
	}

	payload, _ := webhook.NewPayload([]byte(`{"object_kind":"merge_request","object_attributes":{"action":"close"}}`))
	if _, ok := p.Events().Classify(payload); ok {
		t.Fatalf("closed merge request must not classify")
	}
}

func TestParsePushTyped(t *testing.T) {
	payload, _ := webhook.NewPayload([]byte(`{"object_kind":"push","ref":"refs/heads/main","user_username":"root","total_commits_count":2}`))
	data, err := parsePush(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	push := data.(glpayload.PushEventPayload)
	if push.Ref != "refs/heads/main" || push.TotalCommitsCount != 2 {
		t.Fatalf("unexpected push %+v", push)
	}
	p := newTestProvider(t, "", "1", Push)
	if got := p.Actor(payload); got != "root" {
		t.Fatalf("expected actor root, got %q", got)
	}
}

func TestEnableAddsProjectHook(t *testing.T) {
	var got map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v4/projects/42/hooks" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":77,"url":"https://h/webhooks/gitlab"}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, "42", MergeRequestOpened, Pipeline, MergeRequestMerged)
	result, err := p.Enable(context.Background(), webhook.EnableRequest{UserID: "u"}, webhook.EnableTarget{WebhookURL: "https://h/webhooks/gitlab"})
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if auth != "Bearer glpat" {
		t.Fatalf("unexpected auth %q", auth)
	}
	if got["url"] != "https://h/webhooks/gitlab" || got["token"] != testSecret {
		t.Fatalf("unexpected body %v", got)
	}
	if got["merge_requests_events"] != true || got["pipeline_events"] != true || got["push_events"] != false {
		t.Fatalf("unexpected event flags %v", got)
	}
	if result.HookID != "77" {
		t.Fatalf("unexpected hook id %q", result.HookID)
	}
	if len(result.WireEvents) != 2 {
		t.Fatalf("expected two wire events, got %v", result.WireEvents)
	}
}

func TestEnableUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"404 Project Not Found"}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, "group/app", Push)
	_, err := p.Enable(context.Background(), webhook.EnableRequest{}, webhook.EnableTarget{WebhookURL: "x"})
	var upstream *webhook.UpstreamError
	if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 upstream error, got %v", err)
	}
	if !strings.Contains(upstream.Body, "Project Not Found") {
		t.Fatalf("unexpected body %q", upstream.Body)
	}
}
