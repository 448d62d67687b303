package github

import (
	"fmt"

	"hookswitch/pkg/webhook"

	ghpayload "github.com/go-playground/webhooks/v6/github"
)

// Event names accepted by New.
const (
	IssueOpened       = "issue_opened"
	IssueClosed       = "issue_closed"
	IssueReopened     = "issue_reopened"
	Push              = "push"
	PullRequestOpened = "pull_request_opened"
	PullRequestClosed = "pull_request_closed"
)

// Catalog lists every GitHub event the adapter understands.
var Catalog = webhook.Catalog{
	{Name: IssueOpened, Wire: "issues", Match: issueAction("opened"), Parse: parseIssue("opened")},
	{Name: IssueClosed, Wire: "issues", Match: issueAction("closed"), Parse: parseIssue("closed")},
	{Name: IssueReopened, Wire: "issues", Match: issueAction("reopened"), Parse: parseIssue("reopened")},
	{Name: Push, Wire: "push", Match: isPush, Parse: parsePush},
	{Name: PullRequestOpened, Wire: "pull_request", Match: pullRequestAction("opened"), Parse: parsePullRequest("opened")},
	{Name: PullRequestClosed, Wire: "pull_request", Match: pullRequestAction("closed"), Parse: parsePullRequest("closed")},
}

func issueAction(action string) func(webhook.Payload) bool {
	return func(p webhook.Payload) bool {
		return p.String("action") == action && p.Has("issue")
	}
}

func pullRequestAction(action string) func(webhook.Payload) bool {
	return func(p webhook.Payload) bool {
		return p.String("action") == action && p.Has("pull_request")
	}
}

func isPush(p webhook.Payload) bool {
	return p.Has("head_commit")
}

func parseIssue(action string) func(webhook.Payload) (interface{}, error) {
	return func(p webhook.Payload) (interface{}, error) {
		var out ghpayload.IssuesPayload
		if err := p.Decode(&out); err != nil {
			return nil, err
		}
		if out.Action != action {
			return nil, fmt.Errorf("%w: issues action %q, want %q", webhook.ErrMalformedPayload, out.Action, action)
		}
		return out, nil
	}
}

func parsePullRequest(action string) func(webhook.Payload) (interface{}, error) {
	return func(p webhook.Payload) (interface{}, error) {
		var out ghpayload.PullRequestPayload
		if err := p.Decode(&out); err != nil {
			return nil, err
		}
		if out.Action != action {
			return nil, fmt.Errorf("%w: pull_request action %q, want %q", webhook.ErrMalformedPayload, out.Action, action)
		}
		return out, nil
	}
}

func parsePush(p webhook.Payload) (interface{}, error) {
	var out ghpayload.PushPayload
	if err := p.Decode(&out); err != nil {
		return nil, err
	}
	if out.Ref == "" {
		return nil, fmt.Errorf("%w: push ref missing", webhook.ErrMalformedPayload)
	}
	return out, nil
}
