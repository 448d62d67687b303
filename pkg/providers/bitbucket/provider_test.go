package bitbucket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"hookswitch/pkg/webhook"
)

const testSecret = "bb-secret"

func newTestProvider(t *testing.T, baseURL string, events ...string) *Provider {
	t.Helper()
	p, err := New(Config{
		Secret: testSecret,
		Events: events,
		GetEnableArgs: func(context.Context, webhook.EnableRequest) (Credentials, error) {
			return Credentials{AccessToken: "bbt", Workspace: "acme", Repository: "app"}, nil
		},
		BaseURL: baseURL,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return p
}

func TestVerify(t *testing.T) {
	p := newTestProvider(t, "", RepoPush)
	body := []byte(`{"push":{"changes":[]}}`)
	header := http.Header{}
	header.Set(SignatureHeader, webhook.SignSHA256(testSecret, body))
	if !p.Verify(context.Background(), &webhook.Request{Header: header, Body: body}) {
		t.Fatalf("expected signature to verify")
	}
	if p.Verify(context.Background(), &webhook.Request{Header: header, Body: []byte(`{"push":{}}`)}) {
		t.Fatalf("expected modified body to fail")
	}
}

func TestClassify(t *testing.T) {
	p := newTestProvider(t, "", Catalog.Names()...)
	tests := []struct {
		body string
		want string
	}{
		{body: `{"actor":{"nickname":"ana"},"push":{"changes":[]}}`, want: RepoPush},
		{body: `{"pullrequest":{"id":5,"state":"OPEN","title":"x"}}`, want: PullRequestCreated},
		{body: `{"pullrequest":{"id":5,"state":"MERGED","title":"x"}}`, want: PullRequestMerged},
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
	payload, _ := webhook.NewPayload([]byte(`{"pullrequest":{"state":"DECLINED"}}`))
	if _, ok := p.Events().Classify(payload); ok {
		t.Fatalf("declined pull request must not classify")
	}
	payload, _ = webhook.NewPayload([]byte(`{"actor":{"nickname":"ana"}}`))
	if got := p.Actor(payload); got != "ana" {
		t.Fatalf("expected actor ana, got %q", got)
	}
}

func TestEnableCreatesHook(t *testing.T) {
	var created hook
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repositories/acme/app/hooks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"values":[{"uuid":"{old}","url":"https://other"}]}`))
		case http.MethodPost:
			if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
				t.Errorf("decode: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"uuid":"{new}"}`))
		}
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, PullRequestMerged, RepoPush)
	result, err := p.Enable(context.Background(), webhook.EnableRequest{}, webhook.EnableTarget{WebhookURL: "https://h/webhooks/bitbucket"})
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if result.HookID != "{new}" {
		t.Fatalf("unexpected hook id %q", result.HookID)
	}
	if created.Secret != testSecret || !created.Active || created.URL != "https://h/webhooks/bitbucket" {
		t.Fatalf("unexpected hook body %+v", created)
	}
	if !reflect.DeepEqual(created.Events, []string{"pullrequest:fulfilled", "repo:push"}) {
		t.Fatalf("unexpected events %v", created.Events)
	}
}

func TestEnableUpdatesExistingHook(t *testing.T) {
	var (
		posts   int
		updated hook
		srv     *httptest.Server
	)
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Query().Get("page") == "":
			_, _ = w.Write([]byte(`{"values":[{"uuid":"{other}","url":"https://other"}],"next":"` + srv.URL + `/repositories/acme/app/hooks?page=2"}`))
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"values":[{"uuid":"{old}","url":"https://h/webhooks/bitbucket","events":["repo:push"],"active":false}]}`))
		case r.Method == http.MethodPut:
			if r.URL.Path != "/repositories/acme/app/hooks/{old}" {
				t.Errorf("unexpected update path %s", r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
				t.Errorf("decode: %v", err)
			}
			_, _ = w.Write([]byte(`{"uuid":"{old}"}`))
		case r.Method == http.MethodPost:
			posts++
		}
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, PullRequestCreated, PullRequestMerged)
	result, err := p.Enable(context.Background(), webhook.EnableRequest{}, webhook.EnableTarget{WebhookURL: "https://h/webhooks/bitbucket"})
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if posts != 0 || result.HookID != "{old}" {
		t.Fatalf("expected existing hook update, posts=%d id=%q", posts, result.HookID)
	}
	if !updated.Active || updated.Secret != testSecret {
		t.Fatalf("expected active hook with secret, got %+v", updated)
	}
	if !reflect.DeepEqual(updated.Events, []string{"pullrequest:created", "pullrequest:fulfilled"}) {
		t.Fatalf("unexpected events %v", updated.Events)
	}
}

func TestEnableUpdateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"values":[{"uuid":"{old}","url":"https://h/webhooks/bitbucket"}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, RepoPush)
	if _, err := p.Enable(context.Background(), webhook.EnableRequest{}, webhook.EnableTarget{WebhookURL: "https://h/webhooks/bitbucket"}); err == nil {
		t.Fatalf("expected update failure to surface")
	}
}
