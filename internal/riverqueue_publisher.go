package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// riverQueuePublisher inserts events straight into River's job table so a
// River worker (see cmd/riverworker) can pick them up.
type riverQueuePublisher struct {
	db      execer
	closeFn func() error
	cfg     RiverQueueConfig
}

func newRiverQueuePublisher(cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("riverqueue dsn is required")
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &riverQueuePublisher{db: db, closeFn: db.Close, cfg: cfg}, nil
}

// Publish inserts one job whose args are the event envelope.
func (p *riverQueuePublisher) Publish(ctx context.Context, topic string, event Event) error {
	argsPayload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	metadata := map[string]interface{}{
		"provider":   event.Provider,
		"name":       event.Name,
		"event_type": event.Type,
		"topic":      topic,
	}
	if event.RequestID != "" {
		metadata["request_id"] = event.RequestID
	}
	metadataPayload, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	table := strings.TrimSpace(p.cfg.Table)
	if table == "" {
		table = "river_job"
	}
	kind := p.cfg.Kind
	if kind == "" {
		kind = RiverEventKind
	}
	queue := p.cfg.Queue
	if queue == "" {
		queue = "default"
	}
	maxAttempts := p.cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 25
	}
	priority := p.cfg.Priority
	if priority == 0 {
		priority = 1
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (args, kind, max_attempts, metadata, priority, queue, scheduled_at, tags)
VALUES ($1, $2, $3, $4, $5, $6, now(), $7)`,
		table,
	)

	tags := p.cfg.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err = p.db.ExecContext(
		ctx,
		query,
		string(argsPayload),
		kind,
		maxAttempts,
		string(metadataPayload),
		priority,
		queue,
		pq.Array(tags),
	)
	return err
}

func (p *riverQueuePublisher) Close() error {
	if p.closeFn == nil {
		return nil
	}
	return p.closeFn()
}

func (p *riverQueuePublisher) PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error {
	return p.Publish(ctx, topic, event)
}
