package gitlab

import (
	"fmt"

	"hookswitch/pkg/webhook"

	glpayload "github.com/go-playground/webhooks/v6/gitlab"
)

// Event names accepted by New.
const (
	Push               = "push"
	TagPush            = "tag_push"
	MergeRequestOpened = "merge_request_opened"
	MergeRequestMerged = "merge_request_merged"
	Pipeline           = "pipeline"
)

// Wire names are the project hook flags each event needs.
const (
	wirePush          = "push_events"
	wireTagPush       = "tag_push_events"
	wireMergeRequests = "merge_requests_events"
	wirePipeline      = "pipeline_events"
)

// Catalog lists every GitLab event the adapter understands.
var Catalog = webhook.Catalog{
	{Name: Push, Wire: wirePush, Match: objectKind("push"), Parse: parsePush},
	{Name: TagPush, Wire: wireTagPush, Match: objectKind("tag_push"), Parse: parseTagPush},
	{Name: MergeRequestOpened, Wire: wireMergeRequests, Match: mergeRequestAction("open"), Parse: parseMergeRequest("open")},
	{Name: MergeRequestMerged, Wire: wireMergeRequests, Match: mergeRequestAction("merge"), Parse: parseMergeRequest("merge")},
	{Name: Pipeline, Wire: wirePipeline, Match: objectKind("pipeline"), Parse: parsePipeline},
}

func objectKind(kind string) func(webhook.Payload) bool {
	return func(p webhook.Payload) bool {
		return p.String("object_kind") == kind
	}
}

func mergeRequestAction(action string) func(webhook.Payload) bool {
	return func(p webhook.Payload) bool {
		return p.String("object_kind") == "merge_request" && p.String("object_attributes", "action") == action
	}
}

func parsePush(p webhook.Payload) (interface{}, error) {
	var out glpayload.PushEventPayload
	if err := p.Decode(&out); err != nil {
		return nil, err
	}
	if out.Ref == "" {
		return nil, fmt.Errorf("%w: gitlab push ref missing", webhook.ErrMalformedPayload)
	}
	return out, nil
}

func parseTagPush(p webhook.Payload) (interface{}, error) {
	var out glpayload.TagEventPayload
	if err := p.Decode(&out); err != nil {
		return nil, err
	}
	if out.Ref == "" {
		return nil, fmt.Errorf("%w: gitlab tag ref missing", webhook.ErrMalformedPayload)
	}
	return out, nil
}

func parseMergeRequest(action string) func(webhook.Payload) (interface{}, error) {
	return func(p webhook.Payload) (interface{}, error) {
		var out glpayload.MergeRequestEventPayload
		if err := p.Decode(&out); err != nil {
			return nil, err
		}
		if out.ObjectAttributes.Action != action {
			return nil, fmt.Errorf("%w: merge request action %q, want %q", webhook.ErrMalformedPayload, out.ObjectAttributes.Action, action)
		}
		return out, nil
	}
}

func parsePipeline(p webhook.Payload) (interface{}, error) {
	var out glpayload.PipelineEventPayload
	if err := p.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
