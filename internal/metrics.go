package internal

import (
	"expvar"

	"hookswitch/pkg/webhook"
)

var (
	requestsTotal      = expvar.NewMap("hookswitch_requests_total")
	rejectionsTotal    = expvar.NewMap("hookswitch_rejections_total")
	unclassifiedTotal  = expvar.NewMap("hookswitch_unclassified_total")
	handlerErrorsTotal = expvar.NewMap("hookswitch_handler_errors_total")
	dispatchedTotal    = expvar.NewMap("hookswitch_dispatched_total")
	enableTotal        = expvar.NewMap("hookswitch_enable_total")
	publishErrors      = expvar.NewMap("hookswitch_publish_errors_total")
)

// Metrics records dispatcher outcomes in expvar maps keyed by provider.
type Metrics struct{}

var _ webhook.Observer = Metrics{}

// Observe implements webhook.Observer.
func (Metrics) Observe(outcome webhook.Outcome) {
	provider := outcome.Provider
	if provider == "" {
		provider = "unknown"
	}
	switch outcome.Stage {
	case webhook.StageEnabled:
		enableTotal.Add(provider+".ok", 1)
		return
	case webhook.StageEnableFailed:
		enableTotal.Add(provider+".error", 1)
		return
	}

	requestsTotal.Add(provider, 1)
	switch outcome.Stage {
	case webhook.StageNotFound, webhook.StageUnverified, webhook.StageMalformed:
		rejectionsTotal.Add(provider+"."+outcome.Stage, 1)
	case webhook.StageUnclassified, webhook.StageAmbiguous:
		unclassifiedTotal.Add(provider, 1)
	case webhook.StageHandlerError:
		handlerErrorsTotal.Add(provider, 1)
	case webhook.StageDispatched:
		dispatchedTotal.Add(webhook.EventType(provider, outcome.Event), 1)
	}
}

// IncPublishError counts a failed publish per driver.
func IncPublishError(driver string) {
	publishErrors.Add(driver, 1)
}
