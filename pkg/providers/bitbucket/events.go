package bitbucket

import (
	"fmt"

	"hookswitch/pkg/webhook"

	bbpayload "github.com/go-playground/webhooks/v6/bitbucket"
)

// Event names accepted by New.
const (
	RepoPush           = "repo_push"
	PullRequestCreated = "pull_request_created"
	PullRequestMerged  = "pull_request_merged"
)

// Catalog lists every Bitbucket Cloud event the adapter understands.
var Catalog = webhook.Catalog{
	{
		Name:  RepoPush,
		Wire:  "repo:push",
		Match: func(p webhook.Payload) bool { return p.Has("push") },
		Parse: func(p webhook.Payload) (interface{}, error) {
			var out bbpayload.RepoPushPayload
			if err := p.Decode(&out); err != nil {
				return nil, err
			}
			return out, nil
		},
	},
	{
		Name:  PullRequestCreated,
		Wire:  "pullrequest:created",
		Match: pullRequestState("OPEN"),
		Parse: func(p webhook.Payload) (interface{}, error) {
			var out bbpayload.PullRequestCreatedPayload
			if err := p.Decode(&out); err != nil {
				return nil, err
			}
			return out, checkState(out.PullRequest.State, "OPEN")
		},
	},
	{
		Name:  PullRequestMerged,
		Wire:  "pullrequest:fulfilled",
		Match: pullRequestState("MERGED"),
		Parse: func(p webhook.Payload) (interface{}, error) {
			var out bbpayload.PullRequestMergedPayload
			if err := p.Decode(&out); err != nil {
				return nil, err
			}
			return out, checkState(out.PullRequest.State, "MERGED")
		},
	},
}

func pullRequestState(state string) func(webhook.Payload) bool {
	return func(p webhook.Payload) bool {
		return p.String("pullrequest", "state") == state
	}
}

func checkState(got, want string) error {
	if got != want {
		return fmt.Errorf("%w: pullrequest state %q, want %q", webhook.ErrMalformedPayload, got, want)
	}
	return nil
}
