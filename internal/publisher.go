package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmamaqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	stan "github.com/nats-io/stan.go"
)

// Publisher sends events to one or more brokers. A nil or empty drivers
// list means every configured driver.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
	PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error
	Close() error
}

// PublisherFactory builds a watermill publisher for a driver name. The
// returned close func, if any, runs after the publisher is closed.
type PublisherFactory func(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error)

var publisherFactories = map[string]PublisherFactory{
	"gochannel": buildGoChannelPublisher,
	"http":      buildHTTPPublisher,
	"kafka":     buildKafkaPublisher,
	"nats":      buildNATSPublisher,
	"amqp":      buildAMQPPublisher,
	"sql":       buildSQLPublisher,
}

// RegisterPublisherDriver adds or replaces a driver available to NewPublisher.
func RegisterPublisherDriver(name string, factory PublisherFactory) {
	if name == "" || factory == nil {
		return
	}
	publisherFactories[strings.ToLower(name)] = factory
}

var (
	errUnsupportedDriver = errors.New("unsupported watermill driver")
	// errDriverConfig marks build failures that retrying cannot fix.
	errDriverConfig = errors.New("invalid driver config")
)

const (
	buildAttempts = 10
	buildDelay    = 2 * time.Second
)

// NewPublisher builds every configured driver. Drivers that fail to build
// are logged and skipped; no usable driver is an error.
func NewPublisher(cfg WatermillConfig, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	wmLogger := NewWatermillLogger(logger)

	drivers := cfg.Drivers
	if len(drivers) == 0 && cfg.Driver != "" {
		drivers = []string{cfg.Driver}
	}
	if len(drivers) == 0 {
		drivers = []string{"gochannel"}
	}

	mux := &publisherMux{
		publishers: make(map[string]Publisher, len(drivers)),
		attempts:   cfg.PublishRetry.Attempts,
		delay:      time.Duration(cfg.PublishRetry.DelayMS) * time.Millisecond,
		logger:     logger,
	}
	for _, driver := range drivers {
		key := strings.ToLower(strings.TrimSpace(driver))
		if _, dup := mux.publishers[key]; dup {
			continue
		}
		pub, err := retryBuild(buildAttempts, buildDelay, func() (Publisher, error) {
			return newDriverPublisher(cfg, key, wmLogger)
		})
		if err != nil {
			logger.Error("publisher init failed, skipping driver", "driver", key, "error", err)
			continue
		}
		mux.publishers[key] = pub
		mux.defaultDrivers = append(mux.defaultDrivers, key)
	}
	if len(mux.publishers) == 0 {
		return nil, errors.New("no publishers available")
	}
	return mux, nil
}

func newDriverPublisher(cfg WatermillConfig, driver string, logger watermill.LoggerAdapter) (Publisher, error) {
	if driver == "riverqueue" {
		return newRiverQueuePublisher(cfg.RiverQueue)
	}
	factory, ok := publisherFactories[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnsupportedDriver, driver)
	}
	pub, closeFn, err := factory(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &watermillPublisher{publisher: pub, closeFn: closeFn}, nil
}

// retryBuild retries transient build failures such as a broker that is
// still starting. Unknown drivers and bad config fail immediately.
func retryBuild[T any](attempts int, delay time.Duration, build func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
		}
		out, err := build()
		if err == nil {
			return out, nil
		}
		if errors.Is(err, errUnsupportedDriver) || errors.Is(err, errDriverConfig) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

func configError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errDriverConfig, fmt.Sprintf(format, args...))
}

func buildGoChannelPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	pub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.GoChannel.OutputChannelBuffer,
		Persistent:                     cfg.GoChannel.Persistent,
		BlockPublishUntilSubscriberAck: cfg.GoChannel.BlockPublishUntilSubscriberAck,
	}, logger)
	return pub, nil, nil
}

func buildHTTPPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	switch strings.ToLower(cfg.HTTP.Mode) {
	case "topic_url":
	case "base_url":
		if cfg.HTTP.BaseURL == "" {
			return nil, nil, configError("http base_url is required for base_url mode")
		}
	default:
		return nil, nil, configError("unsupported http mode: %s", cfg.HTTP.Mode)
	}
	pub, err := wmhttp.NewPublisher(wmhttp.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*http.Request, error) {
			target, err := httpTargetURL(cfg.HTTP, topic)
			if err != nil {
				return nil, err
			}
			return wmhttp.DefaultMarshalMessageFunc(target, msg)
		},
	}, logger)
	return pub, nil, err
}

func buildKafkaPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil, configError("kafka brokers are required")
	}
	pub, err := wmkafka.NewPublisher(cfg.Kafka.Brokers, wmkafka.DefaultMarshaler{}, nil, logger)
	return pub, nil, err
}

func buildNATSPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.NATS.ClusterID == "" || cfg.NATS.ClientID == "" {
		return nil, nil, configError("nats cluster_id and client_id are required")
	}
	natsCfg := wmnats.StreamingPublisherConfig{
		ClusterID: cfg.NATS.ClusterID,
		ClientID:  cfg.NATS.ClientID,
		Marshaler: wmnats.GobMarshaler{},
	}
	if cfg.NATS.URL != "" {
		natsCfg.StanOptions = append(natsCfg.StanOptions, stan.NatsURL(cfg.NATS.URL))
	}
	pub, err := wmnats.NewStreamingPublisher(natsCfg, logger)
	return pub, nil, err
}

func buildAMQPPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.AMQP.URL == "" {
		return nil, nil, configError("amqp url is required")
	}
	amqpCfg, err := amqpConfigFromMode(cfg.AMQP.URL, cfg.AMQP.Mode)
	if err != nil {
		return nil, nil, err
	}
	pub, err := wmamaqp.NewPublisher(amqpCfg, logger)
	return pub, nil, err
}

func buildSQLPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
		return nil, nil, configError("sql driver and dsn are required")
	}
	schemaAdapter, err := sqlSchemaAdapter(cfg.SQL.Dialect)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
	if err != nil {
		return nil, nil, err
	}
	pub, err := wmsql.NewPublisher(db, wmsql.PublisherConfig{
		SchemaAdapter:        schemaAdapter,
		AutoInitializeSchema: cfg.SQL.AutoInitializeSchema || cfg.SQL.InitializeSchema,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return pub, db.Close, nil
}

type watermillPublisher struct {
	publisher message.Publisher
	closeFn   func() error
}

// Publish forwards the raw webhook body when present, falling back to the
// JSON envelope. Event identity travels in message metadata.
func (w *watermillPublisher) Publish(ctx context.Context, topic string, event Event) error {
	payload := []byte(event.RawPayload)
	if len(payload) == 0 {
		encoded, err := json.Marshal(event)
		if err != nil {
			return err
		}
		payload = encoded
	}

	id := event.ID
	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, payload)
	msg.Metadata.Set("provider", event.Provider)
	msg.Metadata.Set("event", event.Name)
	msg.Metadata.Set("event_type", event.Type)
	if event.RequestID != "" {
		msg.Metadata.Set("request_id", event.RequestID)
	}
	msg.SetContext(ctx)
	return w.publisher.Publish(topic, msg)
}

func (w *watermillPublisher) PublishForDrivers(ctx context.Context, topic string, event Event, _ []string) error {
	return w.Publish(ctx, topic, event)
}

func (w *watermillPublisher) Close() error {
	if w.publisher == nil {
		return nil
	}
	err := w.publisher.Close()
	if w.closeFn != nil {
		err = errors.Join(err, w.closeFn())
	}
	return err
}

type publisherMux struct {
	publishers     map[string]Publisher
	defaultDrivers []string
	attempts       int
	delay          time.Duration
	logger         *slog.Logger
}

func (m *publisherMux) Publish(ctx context.Context, topic string, event Event) error {
	return m.PublishForDrivers(ctx, topic, event, nil)
}

func (m *publisherMux) PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error {
	targets := drivers
	if len(targets) == 0 {
		targets = m.defaultDrivers
	}

	var err error
	for _, driver := range targets {
		key := strings.ToLower(driver)
		pub, ok := m.publishers[key]
		if !ok {
			err = errors.Join(err, fmt.Errorf("unknown driver %s", driver))
			continue
		}
		if publishErr := m.publishWithRetry(ctx, pub, topic, event); publishErr != nil {
			IncPublishError(key)
			m.logger.Error("publish failed", "driver", key, "topic", topic, "event_type", event.Type, "error", publishErr)
			err = errors.Join(err, fmt.Errorf("%s: %w", key, publishErr))
		}
	}
	return err
}

func (m *publisherMux) publishWithRetry(ctx context.Context, pub Publisher, topic string, event Event) error {
	attempts := m.attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && m.delay > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(m.delay):
			}
		}
		lastErr = pub.Publish(ctx, topic, event)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (m *publisherMux) Close() error {
	var err error
	for _, pub := range m.publishers {
		err = errors.Join(err, pub.Close())
	}
	return err
}

func amqpConfigFromMode(url, mode string) (wmamaqp.Config, error) {
	switch strings.ToLower(mode) {
	case "", "durable_queue":
		return wmamaqp.NewDurableQueueConfig(url), nil
	case "nondurable_queue":
		return wmamaqp.NewNonDurableQueueConfig(url), nil
	case "durable_pubsub":
		return wmamaqp.NewDurablePubSubConfig(url, nil), nil
	case "nondurable_pubsub":
		return wmamaqp.NewNonDurablePubSubConfig(url, nil), nil
	default:
		return wmamaqp.Config{}, configError("unsupported amqp mode: %s", mode)
	}
}

func sqlSchemaAdapter(dialect string) (wmsql.SchemaAdapter, error) {
	switch strings.ToLower(dialect) {
	case "postgres", "postgresql":
		return wmsql.DefaultPostgreSQLSchema{}, nil
	case "mysql":
		return wmsql.DefaultMySQLSchema{}, nil
	default:
		return nil, configError("unsupported sql dialect: %s", dialect)
	}
}

// httpTargetURL resolves where the http driver posts a topic: the topic
// itself in topic_url mode, or base_url/topic in base_url mode.
func httpTargetURL(cfg HTTPConfig, topic string) (string, error) {
	switch strings.ToLower(cfg.Mode) {
	case "topic_url":
		if topic == "" {
			return "", fmt.Errorf("http topic url is empty")
		}
		return topic, nil
	case "base_url":
		if cfg.BaseURL == "" {
			return "", fmt.Errorf("http base_url is empty")
		}
		base := strings.TrimRight(cfg.BaseURL, "/")
		if topic == "" {
			return base, nil
		}
		return base + "/" + strings.TrimLeft(topic, "/"), nil
	default:
		return "", fmt.Errorf("unsupported http mode: %s", cfg.Mode)
	}
}
