package webhook

import (
	"errors"
	"fmt"
)

// EventDefinition declares one recognizable payload shape of a provider.
type EventDefinition struct {
	// Name is the logical event name, e.g. "issue_opened".
	Name string
	// Wire is the provider-side event identifier used when registering a hook.
	Wire string
	// Match must be a pure function of the payload.
	Match func(Payload) bool
	// Parse decodes the payload into the event's concrete type.
	Parse func(Payload) (interface{}, error)
}

// Catalog lists every event a provider supports, in declaration order.
type Catalog []EventDefinition

// Names returns every event name in c.
func (c Catalog) Names() []string {
	out := make([]string, len(c))
	for i, def := range c {
		out[i] = def.Name
	}
	return out
}

// Events is the subset of a catalog an adapter was built for.
type Events struct {
	defs  []EventDefinition
	index map[string]int
}

// NewEvents selects names from catalog, keeping the order of names.
// Duplicate names collapse to their first occurrence.
func NewEvents(catalog Catalog, names ...string) (*Events, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one event is required")
	}
	byName := make(map[string]EventDefinition, len(catalog))
	for _, def := range catalog {
		if def.Match == nil || def.Parse == nil {
			return nil, fmt.Errorf("event %q is missing match or parse", def.Name)
		}
		byName[def.Name] = def
	}

	events := &Events{index: make(map[string]int, len(names))}
	for _, name := range names {
		if _, seen := events.index[name]; seen {
			continue
		}
		def, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
		}
		events.index[name] = len(events.defs)
		events.defs = append(events.defs, def)
	}
	return events, nil
}

// Names returns the selected event names in declaration order.
func (e *Events) Names() []string {
	out := make([]string, 0, len(e.defs))
	for _, def := range e.defs {
		out = append(out, def.Name)
	}
	return out
}

// Lookup returns the definition registered under name.
func (e *Events) Lookup(name string) (EventDefinition, bool) {
	i, ok := e.index[name]
	if !ok {
		return EventDefinition{}, false
	}
	return e.defs[i], true
}

// WireEvents returns the deduplicated wire identifiers needed to cover the
// selected events, in first-seen order.
func (e *Events) WireEvents() []string {
	seen := make(map[string]struct{}, len(e.defs))
	out := make([]string, 0, len(e.defs))
	for _, def := range e.defs {
		if def.Wire == "" {
			continue
		}
		if _, ok := seen[def.Wire]; ok {
			continue
		}
		seen[def.Wire] = struct{}{}
		out = append(out, def.Wire)
	}
	return out
}

// Classify returns the first event in declaration order whose Match accepts p.
func (e *Events) Classify(p Payload) (string, bool) {
	for _, def := range e.defs {
		if def.Match(p) {
			return def.Name, true
		}
	}
	return "", false
}

// Matches returns every event whose Match accepts p.
func (e *Events) Matches(p Payload) []string {
	var out []string
	for _, def := range e.defs {
		if def.Match(p) {
			out = append(out, def.Name)
		}
	}
	return out
}
