package nuntius

import (
	"github.com/OrlandoBitencourt/nuntius/internal/domain"
	"github.com/OrlandoBitencourt/nuntius/internal/segments"
	"github.com/OrlandoBitencourt/nuntius/internal/value"
)

// Event is one tracked action submitted by the host app.
type Event struct {
	// Type is the event type tag, e.g. "session_start" or "payment".
	Type string

	// Properties carries arbitrary event attributes.
	Properties map[string]any

	// Timestamp is seconds since epoch; zero means "now".
	Timestamp float64
}

// NewEvent creates an event with the given type.
func NewEvent(eventType string) Event {
	return Event{Type: eventType, Properties: make(map[string]any)}
}

// WithProperty adds an attribute (fluent interface).
func (e Event) WithProperty(key string, v any) Event {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[key] = v
	return e
}

func (e Event) toDomain() domain.Event {
	ev := domain.NewEvent(e.Type, value.Map(e.Properties))
	if e.Timestamp != 0 {
		ev = ev.WithTimestamp(e.Timestamp)
	}
	return ev
}

// Message is an in-app message selected for display, in rank order.
type Message struct {
	// ID identifies the message definition.
	ID string

	// Name is the human-readable message name.
	Name string

	// Priority is the load priority; nil ranks lowest.
	Priority *int

	// Payload contains the message content for rendering.
	Payload map[string]any
}

func toMessage(c *domain.Candidate) Message {
	payload := make(map[string]any)
	for k, v := range c.Payload() {
		payload[k] = v.ToAny()
	}
	return Message{
		ID:       c.ID,
		Name:     c.Name,
		Priority: c.Priority,
		Payload:  payload,
	}
}

// BlockView is the renderable handle for one assigned content block.
type BlockView struct {
	// ID identifies the block definition.
	ID string

	// Payload contains the block content for rendering.
	Payload map[string]any

	// Height is the declared render height; zero means self-sizing.
	Height float64

	// State is "assigned" until the display is tracked, then "displayed".
	State string
}

// SegmentDTO is one server-computed customer segment assignment.
type SegmentDTO = domain.SegmentDTO

// SegmentCategoryType tags a segment category
// (discovery/merchandising/content/other).
type SegmentCategoryType = domain.CategoryType

// Exported category tags.
const (
	CategoryDiscovery     = domain.CategoryDiscovery
	CategoryMerchandising = domain.CategoryMerchandising
	CategoryContent       = domain.CategoryContent
	CategoryOther         = domain.CategoryOther
)

// SegmentCallbackData registers interest in one segment category. The
// callback fires with the category's DTO sequence on genuine changes,
// plus once with best-known data when IncludeFirstLoad is set.
type SegmentCallbackData = segments.CallbackData

// RefreshCallback receives the placeholder and index whose catalog entry
// changed and must re-render. Invocations are serialized.
type RefreshCallback func(placeholderID string, index int)
