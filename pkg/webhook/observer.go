package webhook

// Stage names where an inbound request or enable call ended.
const (
	StageNotFound     = "provider_not_found"
	StageUnverified   = "unverified"
	StageMalformed    = "malformed"
	StageUnclassified = "unclassified"
	StageAmbiguous    = "ambiguous"
	StageHandlerError = "handler_error"
	StageDispatched   = "dispatched"
	StageEnabled      = "enabled"
	StageEnableFailed = "enable_failed"
)

// Outcome describes how one request or enable call finished.
type Outcome struct {
	Provider string
	Event    string
	Stage    string
	Status   int
}

// Observer receives an Outcome for every request and enable call.
type Observer interface {
	Observe(Outcome)
}

type nopObserver struct{}

func (nopObserver) Observe(Outcome) {}
