package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hookswitch/pkg/webhook"

	"github.com/google/uuid"
)

// DLQTopic receives envelopes whose publish failed when a DLQ driver is set.
const DLQTopic = "hookswitch.dlq"

// EventSink is the application handler behind the dispatcher. It routes
// every classified event through the rule engine and publishes the envelope
// to each matched topic. Without a matching rule the event type is the topic.
type EventSink struct {
	rules     *RuleEngine
	publisher Publisher
	dlqDriver string
	logger    *slog.Logger
	now       func() time.Time
}

var _ webhook.Handler = (*EventSink)(nil)

// NewEventSink builds a sink. rules may be nil.
func NewEventSink(rules *RuleEngine, publisher Publisher, dlqDriver string, logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{
		rules:     rules,
		publisher: publisher,
		dlqDriver: dlqDriver,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleEvent implements webhook.Handler. A failed publish is returned so
// the dispatcher answers 500 and the provider redelivers.
func (s *EventSink) HandleEvent(ctx context.Context, event webhook.Event) error {
	if s.publisher == nil {
		return errors.New("event sink has no publisher")
	}
	envelope := s.envelope(event)

	matches := s.rules.Evaluate(envelope)
	if len(matches) == 0 {
		matches = []RuleMatch{{Topic: envelope.Type}}
	}
	logger := s.logger.With("event_type", envelope.Type, "event_id", envelope.ID, "request_id", envelope.RequestID)

	var err error
	for _, match := range matches {
		publishErr := s.publisher.PublishForDrivers(ctx, match.Topic, envelope, match.Drivers)
		if publishErr == nil {
			logger.Debug("event published", "topic", match.Topic, "drivers", match.Drivers)
			continue
		}
		err = errors.Join(err, fmt.Errorf("publish %s: %w", match.Topic, publishErr))
		s.deadLetter(ctx, logger, envelope)
	}
	return err
}

func (s *EventSink) envelope(event webhook.Event) Event {
	data := map[string]interface{}{}
	var object map[string]interface{}
	if err := json.Unmarshal(event.Raw, &object); err == nil && object != nil {
		data = Flatten(object)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       event.Type,
		Provider:   event.Provider,
		Name:       event.Name,
		RequestID:  event.RequestID,
		Data:       data,
		RawPayload: event.Raw,
		ReceivedAt: s.now().UTC(),
	}
}

func (s *EventSink) deadLetter(ctx context.Context, logger *slog.Logger, envelope Event) {
	if s.dlqDriver == "" {
		return
	}
	if err := s.publisher.PublishForDrivers(ctx, DLQTopic, envelope, []string{s.dlqDriver}); err != nil {
		logger.Error("dead letter publish failed", "driver", s.dlqDriver, "error", err)
	}
}
