package internal

import (
	"testing"

	"gopkg.in/yaml.v3"
)

// TestRuleEngineEvaluate tests that the rule engine correctly evaluates a simple rule.
func TestRuleEngineEvaluate(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "action == \"opened\"", Emit: EmitList{"pr.opened"}},
			{When: "action == \"closed\" && merged == true", Emit: EmitList{"pr.merged"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "pull_request",
		RawPayload: []byte(`{"action":"opened","merged":false}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(matches))
	}
	if matches[0].Topic != "pr.opened" {
		t.Fatalf("expected topic pr.opened, got %q", matches[0].Topic)
	}
}

// TestRuleEngineEvaluateMissingField tests that the rule engine does not match a rule with a missing field.
func TestRuleEngineEvaluateMissingField(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "missing == true", Emit: EmitList{"never"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "push",
		RawPayload: []byte(`{}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 0 {
		t.Fatalf("expected no topics, got %d", len(matches))
	}
}

// TestRuleEngineWithDrivers tests that the rule engine correctly handles a rule with drivers specified.
func TestRuleEngineWithDrivers(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "action == \"opened\"", Emit: EmitList{"pr.opened"}, Drivers: []string{"amqp", "http"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "pull_request",
		RawPayload: []byte(`{"action":"opened"}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if len(matches[0].Drivers) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(matches[0].Drivers))
	}
}

// TestRuleEngineJSONPathDot tests that the rule engine correctly handles a JSONPath expression with dot notation.
func TestRuleEngineJSONPathDot(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "$.pull_request.draft == false", Emit: EmitList{"pr.opened"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "pull_request",
		RawPayload: []byte(`{"pull_request":{"draft":false}}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineJSONPathIndex tests that the rule engine correctly handles a JSONPath expression with an index.
func TestRuleEngineJSONPathIndex(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "$.pull_request[0].draft == false", Emit: EmitList{"pr.opened"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "pull_request",
		RawPayload: []byte(`{"pull_request":[{"draft":false}]}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineJSONPathFilter tests that the rule engine correctly handles a JSONPath expression with a filter.
func TestRuleEngineJSONPathFilter(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "$.pull_request[0].draft == false", Emit: EmitList{"pr.opened"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "pull_request",
		RawPayload: []byte(`{"pull_request":[{"draft":false},{"draft":true}]}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineBareJSONPath tests that the rule engine correctly handles a bare JSONPath expression.
func TestRuleEngineBareJSONPath(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "action == \"opened\" && pull_request.draft == false", Emit: EmitList{"pr.opened"}},
			{When: "pull_requests[0].draft == false", Emit: EmitList{"pr.any"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "pull_request",
		RawPayload: []byte(`{"action":"opened","pull_request":{"draft":false},"pull_requests":[{"draft":false}]}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

// TestRuleEngineStrictMissing tests that the rule engine in strict mode does not match a rule with a missing field.
func TestRuleEngineStrictMissing(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "missing_field == true", Emit: EmitList{"never"}},
		},
		Strict: true,
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "pull_request",
		RawPayload: []byte(`{"action":"opened"}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 0 {
		t.Fatalf("expected no matches in strict mode, got %d", len(matches))
	}
}

func TestRuleEngineFunctions(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: `contains(labels, "bug")`, Emit: EmitList{"label.bug"}},
			{When: `like(ref, "refs/heads/%")`, Emit: EmitList{"branch.push"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "push",
		RawPayload: []byte(`{"labels":["bug","ui"],"ref":"refs/heads/main"}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

func TestRuleEngineEventType(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{
			{When: `event_type == "gitlab/push" && provider == "gitlab"`, Emit: EmitList{"gitlab.push", "audit"}},
		},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Event{Type: "gitlab/push", Provider: "gitlab", Name: "push", RawPayload: []byte(`{"object_kind":"push"}`)})
	if len(matches) != 2 || matches[0].Topic != "gitlab.push" || matches[1].Topic != "audit" {
		t.Fatalf("unexpected matches %+v", matches)
	}
}

func TestRuleEngineLenientMissingIsNil(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{
			{When: "$.pull_request.merged != true", Emit: EmitList{"not.merged"}},
		},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Event{RawPayload: []byte(`{"action":"opened"}`)})
	if len(matches) != 1 {
		t.Fatalf("expected missing field to compare as nil, got %d matches", len(matches))
	}
}

func TestRuleEngineStringLiteralsUntouched(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{
		Rules: []Rule{
			{When: `ref == "refs.heads.main"`, Emit: EmitList{"main"}},
		},
	})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Event{RawPayload: []byte(`{"ref":"refs.heads.main"}`)})
	if len(matches) != 1 {
		t.Fatalf("expected literal with dots to match, got %d", len(matches))
	}
}

func TestNewRuleEngineRejectsBadExpression(t *testing.T) {
	if _, err := NewRuleEngine(RulesConfig{Rules: []Rule{{When: "action ==", Emit: EmitList{"x"}}}}); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestEmitListYAML(t *testing.T) {
	var rules []Rule
	doc := []byte("- when: action == \"opened\"\n  emit: one\n- when: action == \"closed\"\n  emit: [two, three]\n")
	if err := yaml.Unmarshal(doc, &rules); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rules) != 2 || len(rules[0].Emit) != 1 || rules[0].Emit[0] != "one" {
		t.Fatalf("unexpected scalar emit %+v", rules)
	}
	if len(rules[1].Emit) != 2 || rules[1].Emit[1] != "three" {
		t.Fatalf("unexpected list emit %+v", rules[1].Emit)
	}
}
