package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
)

type recordingExecer struct {
	query string
	args  []interface{}
}

func (r *recordingExecer) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	r.query = query
	r.args = args
	return nil, nil
}

func TestRiverQueuePublishInsertsJob(t *testing.T) {
	db := &recordingExecer{}
	pub := &riverQueuePublisher{db: db, cfg: RiverQueueConfig{Table: "river_job", Queue: "hooks", Tags: []string{"webhook"}}}

	event := Event{ID: "evt-1", Type: "github/push", Provider: "github", Name: "push", RequestID: "req-9"}
	if err := pub.Publish(context.Background(), "repo.push", event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.HasPrefix(db.query, "INSERT INTO river_job") {
		t.Fatalf("unexpected query %q", db.query)
	}
	if len(db.args) != 7 {
		t.Fatalf("expected 7 args, got %d", len(db.args))
	}

	var args Event
	if err := json.Unmarshal([]byte(db.args[0].(string)), &args); err != nil {
		t.Fatalf("decode args: %v", err)
	}
	if args.ID != "evt-1" || args.Type != "github/push" {
		t.Fatalf("unexpected job args %+v", args)
	}
	if db.args[1] != RiverEventKind || db.args[2] != 25 || db.args[4] != 1 || db.args[5] != "hooks" {
		t.Fatalf("unexpected job columns %v", db.args[1:6])
	}

	var metadata map[string]string
	if err := json.Unmarshal([]byte(db.args[3].(string)), &metadata); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if metadata["topic"] != "repo.push" || metadata["request_id"] != "req-9" {
		t.Fatalf("unexpected metadata %v", metadata)
	}
}

func TestRiverQueueRequiresDSN(t *testing.T) {
	if _, err := newRiverQueuePublisher(RiverQueueConfig{}); err == nil {
		t.Fatalf("expected dsn error")
	}
}
