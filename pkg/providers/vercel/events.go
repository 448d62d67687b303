package vercel

import (
	"fmt"

	"hookswitch/pkg/webhook"
)

// Event names accepted by New.
const (
	DeploymentCreated   = "deployment_created"
	DeploymentSucceeded = "deployment_succeeded"
	DeploymentError     = "deployment_error"
	DeploymentCanceled  = "deployment_canceled"
)

// DeploymentPayload is the body Vercel sends for deployment.* events.
type DeploymentPayload struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
	Region    string `json:"region"`
	Payload   struct {
		Team struct {
			ID *string `json:"id"`
		} `json:"team"`
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Alias      []string `json:"alias"`
		Deployment struct {
			ID   string                 `json:"id"`
			Meta map[string]interface{} `json:"meta"`
			URL  string                 `json:"url"`
			Name string                 `json:"name"`
		} `json:"deployment"`
		Links struct {
			Deployment string `json:"deployment"`
			Project    string `json:"project"`
		} `json:"links"`
		// Target is "production", "staging" or null.
		Target  *string `json:"target"`
		Project struct {
			ID string `json:"id"`
		} `json:"project"`
		Plan    string   `json:"plan"`
		Regions []string `json:"regions"`
	} `json:"payload"`
}

// Catalog lists every Vercel event the adapter understands.
var Catalog = webhook.Catalog{
	deployment(DeploymentCreated, "deployment.created"),
	deployment(DeploymentSucceeded, "deployment.succeeded"),
	deployment(DeploymentError, "deployment.error"),
	deployment(DeploymentCanceled, "deployment.canceled"),
}

func deployment(name, wire string) webhook.EventDefinition {
	return webhook.EventDefinition{
		Name: name,
		Wire: wire,
		Match: func(p webhook.Payload) bool {
			return p.String("type") == wire
		},
		Parse: func(p webhook.Payload) (interface{}, error) {
			var out DeploymentPayload
			if err := p.Decode(&out); err != nil {
				return nil, err
			}
			if out.Type != wire {
				return nil, fmt.Errorf("%w: vercel type %q, want %q", webhook.ErrMalformedPayload, out.Type, wire)
			}
			return out, nil
		},
	}
}
