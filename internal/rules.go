package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
	"gopkg.in/yaml.v3"
)

// EmitList is one or more topics; YAML accepts a scalar or a sequence.
type EmitList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *EmitList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*e = EmitList{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*e = items
		return nil
	default:
		return fmt.Errorf("emit must be a string or a list of strings")
	}
}

// Rule routes events matching When to the Emit topics.
type Rule struct {
	When    string   `yaml:"when"`
	Emit    EmitList `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// RuleMatch is one topic an event should be published to.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	when    string
	emit    []string
	drivers []string
	expr    *govaluate.EvaluableExpression
	// paths maps the synthetic parameter names to JSONPath expressions.
	paths map[string]string
}

// RuleEngine evaluates govaluate expressions against webhook payloads.
// Identifiers may be plain keys (action), dotted or indexed paths
// (pull_request.draft, commits[0].id) or JSONPath ($.pull_request.draft).
// Non-strict engines treat missing fields as nil; strict engines skip rules
// that reference a missing field.
type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger *slog.Logger
}

var ruleFunctions = map[string]govaluate.ExpressionFunction{
	"contains": ruleContains,
	"like":     ruleLike,
}

// NewRuleEngine compiles every rule, failing on the first bad expression.
func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		rewritten, paths := rewritePaths(rule.When)
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, ruleFunctions)
		if err != nil {
			return nil, fmt.Errorf("rule %d %q: %w", i, rule.When, err)
		}
		rules = append(rules, compiledRule{
			when:    rule.When,
			emit:    rule.Emit,
			drivers: rule.Drivers,
			expr:    expr,
			paths:   paths,
		})
	}

	return &RuleEngine{rules: rules, strict: cfg.Strict, logger: logger}, nil
}

// Evaluate returns one match per emitted topic, in rule order.
func (r *RuleEngine) Evaluate(event Event) []RuleMatch {
	if r == nil || len(r.rules) == 0 {
		return nil
	}

	var document interface{}
	if len(event.RawPayload) > 0 {
		if err := json.Unmarshal(event.RawPayload, &document); err != nil {
			r.logger.Warn("rule payload decode failed", "event_type", event.Type, "error", err)
			return nil
		}
	}
	base := map[string]interface{}{}
	if object, ok := document.(map[string]interface{}); ok {
		base = Flatten(object)
		for key, value := range object {
			base[key] = value
		}
	}
	if _, ok := base["provider"]; !ok {
		base["provider"] = event.Provider
	}
	if _, ok := base["event_type"]; !ok {
		base["event_type"] = event.Type
	}

	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		params, missing := r.parameters(rule, base, document)
		if missing != "" && r.strict {
			r.logger.Debug("rule skipped, field missing", "rule", rule.when, "field", missing)
			continue
		}
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			r.logger.Debug("rule eval failed", "rule", rule.when, "error", err)
			continue
		}
		if ok, _ := result.(bool); !ok {
			continue
		}
		for _, topic := range rule.emit {
			matches = append(matches, RuleMatch{Topic: topic, Drivers: rule.drivers})
		}
	}
	return matches
}

// parameters resolves every variable the rule references. The name of the
// first missing one is returned alongside.
func (r *RuleEngine) parameters(rule compiledRule, base map[string]interface{}, document interface{}) (map[string]interface{}, string) {
	params := make(map[string]interface{}, len(base)+len(rule.paths))
	for key, value := range base {
		params[key] = value
	}
	missing := ""
	for name, path := range rule.paths {
		value, err := jsonpath.Get(path, document)
		if err != nil {
			if missing == "" {
				missing = path
			}
			value = nil
		}
		params[name] = value
	}
	for _, name := range rule.expr.Vars() {
		if _, ok := params[name]; !ok {
			if missing == "" {
				missing = name
			}
			params[name] = nil
		}
	}
	return params, missing
}

var (
	jsonPathToken = regexp.MustCompile(`^\$(\.[A-Za-z_][A-Za-z0-9_]*|\[\d+\]|\[\*\])+`)
	barePathToken = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*|\[\d+\])+`)
)

// rewritePaths swaps path identifiers outside string literals for synthetic
// parameter names govaluate can look up.
func rewritePaths(expr string) (string, map[string]string) {
	paths := map[string]string{}
	var out strings.Builder
	for i := 0; i < len(expr); {
		c := expr[i]
		if c == '"' || c == '\'' {
			end := i + 1
			for end < len(expr) && expr[end] != c {
				if expr[end] == '\\' {
					end++
				}
				end++
			}
			if end < len(expr) {
				end++
			}
			out.WriteString(expr[i:end])
			i = end
			continue
		}
		if i > 0 && isIdentChar(expr[i-1]) {
			out.WriteByte(c)
			i++
			continue
		}
		rest := expr[i:]
		token := jsonPathToken.FindString(rest)
		path := token
		if token == "" {
			token = barePathToken.FindString(rest)
			path = "$." + token
		}
		if token == "" {
			out.WriteByte(c)
			i++
			continue
		}
		name := "jsonPath" + strconv.Itoa(len(paths))
		paths[name] = path
		out.WriteString(name)
		i += len(token)
	}
	return out.String(), paths
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '.' || c == ']' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func ruleContains(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, errors.New("contains expects (collection, value)")
	}
	switch collection := args[0].(type) {
	case nil:
		return false, nil
	case string:
		needle, ok := args[1].(string)
		return ok && strings.Contains(collection, needle), nil
	case []interface{}:
		for _, item := range collection {
			if reflect.DeepEqual(item, args[1]) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

func ruleLike(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, errors.New("like expects (value, pattern)")
	}
	value, ok := args[0].(string)
	if !ok {
		return false, nil
	}
	pattern, ok := args[1].(string)
	if !ok {
		return nil, errors.New("like pattern must be a string")
	}
	var re strings.Builder
	re.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			re.WriteString(".*")
		case '_':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	re.WriteString("$")
	matched, err := regexp.MatchString(re.String(), value)
	if err != nil {
		return nil, err
	}
	return matched, nil
}
