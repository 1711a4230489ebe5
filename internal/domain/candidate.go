package domain

import (
	"encoding/json"
	"time"

	"github.com/OrlandoBitencourt/nuntius/internal/value"
)

// Frequency limits how often a candidate may redisplay relative to its
// display history.
type Frequency string

const (
	FrequencyAlways                Frequency = "always"
	FrequencyOnlyOnce              Frequency = "only_once"
	FrequencyOncePerVisit          Frequency = "once_per_visit"
	FrequencyUntilVisitorInteracts Frequency = "until_visitor_interacts"
)

// Known reports whether the frequency is one of the recognized values.
// Unknown frequencies are kept verbatim and handled permissively by the
// policy evaluator.
func (f Frequency) Known() bool {
	switch f {
	case FrequencyAlways, FrequencyOnlyOnce, FrequencyOncePerVisit, FrequencyUntilVisitorInteracts:
		return true
	}
	return false
}

// DateFilter bounds the display window of a candidate. Absent bounds are
// unbounded on that side.
type DateFilter struct {
	Enabled   bool       `json:"enabled"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// Candidate is a message or content block definition fetched from the
// server. Candidates are immutable after decoding; runtime display state
// (status, session start) travels separately through policy.Input.
type Candidate struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Trigger      *Filter    `json:"trigger,omitempty"`
	DateFilter   DateFilter `json:"date_filter"`
	Frequency    Frequency  `json:"frequency,omitempty"`
	Priority     *int       `json:"load_priority,omitempty"`
	Placeholders []string   `json:"placeholders,omitempty"`

	rawPayload json.RawMessage
	payload    map[string]value.Value
}

// candidateJSON mirrors Candidate for strict wire decoding; the payload
// stays raw until first access.
type candidateJSON struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Trigger      *Filter         `json:"trigger,omitempty"`
	DateFilter   DateFilter      `json:"date_filter"`
	Frequency    Frequency       `json:"frequency,omitempty"`
	Priority     *int            `json:"load_priority,omitempty"`
	Placeholders []string        `json:"placeholders,omitempty"`
	Payload      json.RawMessage `json:"content,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. The payload is decoded
// eagerly so a decoded candidate never mutates and can be shared across
// goroutines without locking.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var raw candidateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Candidate{
		ID:           raw.ID,
		Name:         raw.Name,
		Trigger:      raw.Trigger,
		DateFilter:   raw.DateFilter,
		Frequency:    raw.Frequency,
		Priority:     raw.Priority,
		Placeholders: raw.Placeholders,
		rawPayload:   raw.Payload,
		payload:      decodePayload(raw.Payload),
	}
	return nil
}

// decodePayload turns the raw content blob into the value model. Decode
// failures yield an empty payload; the candidate stays usable for
// filtering either way.
func decodePayload(raw json.RawMessage) map[string]value.Value {
	if len(raw) == 0 {
		return map[string]value.Value{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]value.Value{}
	}
	return value.Map(m)
}

// MarshalJSON implements json.Marshaler.
func (c Candidate) MarshalJSON() ([]byte, error) {
	return json.Marshal(candidateJSON{
		ID:           c.ID,
		Name:         c.Name,
		Trigger:      c.Trigger,
		DateFilter:   c.DateFilter,
		Frequency:    c.Frequency,
		Priority:     c.Priority,
		Placeholders: c.Placeholders,
		Payload:      c.rawPayload,
	})
}

// Payload returns the decoded content. Candidates built outside the
// wire decoder carry whatever SetPayload installed.
func (c *Candidate) Payload() map[string]value.Value {
	if c.payload == nil {
		return map[string]value.Value{}
	}
	return c.payload
}

// SetPayload is a test hook for building candidates without wire data.
func (c *Candidate) SetPayload(p map[string]value.Value) {
	c.payload = p
}

// HasPlaceholder reports whether the candidate targets the placeholder.
func (c *Candidate) HasPlaceholder(id string) bool {
	for _, p := range c.Placeholders {
		if p == id {
			return true
		}
	}
	return false
}

// PriorityOrDefault returns the load priority, with nil treated as the
// lowest possible rank.
func (c *Candidate) PriorityOrDefault() int {
	if c.Priority == nil {
		return 0
	}
	return *c.Priority
}

// DisplayStatus records whether and when a candidate was shown or
// interacted with. It is persisted per candidate id by the tracking side;
// the policy evaluator only reads it.
type DisplayStatus struct {
	Displayed  *time.Time `json:"displayed,omitempty"`
	Interacted *time.Time `json:"interacted,omitempty"`
}
