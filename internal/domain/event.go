// Package domain holds the core types shared by the filter, policy,
// blocks and segments packages.
package domain

import (
	"github.com/OrlandoBitencourt/nuntius/internal/value"
)

// Event is one tracked action as seen by the filter engine. An event may
// nominally carry more than one type tag; trigger matching treats the tags
// with OR semantics.
type Event struct {
	Types      []string
	Properties map[string]value.Value
	Timestamp  *float64
}

// NewEvent creates a single-type event.
func NewEvent(eventType string, props map[string]value.Value) Event {
	return Event{
		Types:      []string{eventType},
		Properties: props,
	}
}

// WithTimestamp attaches a tracking timestamp (seconds since epoch).
func (e Event) WithTimestamp(ts float64) Event {
	e.Timestamp = &ts
	return e
}

// Property returns the rendered string form of a property and whether it
// is present. Absent properties are "not set" for operator purposes.
func (e Event) Property(name string) (string, bool) {
	v, ok := e.Properties[name]
	if !ok {
		return "", false
	}
	return v.String(), true
}

// RawProperty returns the underlying value and whether it is present.
// Operators distinguishing "set" from "has value" need the raw form.
func (e Event) RawProperty(name string) (value.Value, bool) {
	v, ok := e.Properties[name]
	return v, ok
}
