package domain

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/OrlandoBitencourt/nuntius/internal/value"
)

// Combinator joins child filters of a boolean node.
type Combinator string

const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
	CombinatorNot Combinator = "not"
)

// AttributeType selects which part of the event a condition reads.
type AttributeType string

const (
	AttributeProperty  AttributeType = "property"
	AttributeEventType AttributeType = "type"
	AttributeTimestamp AttributeType = "timestamp"
)

// Attribute references one readable slot of an event record.
type Attribute struct {
	Type AttributeType `json:"type"`
	Name string        `json:"name,omitempty"`
}

// Resolve looks the attribute up on the event, rendered as a string.
// Missing attributes resolve to "not set".
func (a Attribute) Resolve(ev Event) (string, bool) {
	switch a.Type {
	case AttributeProperty:
		return ev.Property(a.Name)
	case AttributeEventType:
		if len(ev.Types) == 0 {
			return "", false
		}
		return ev.Types[0], true
	case AttributeTimestamp:
		if ev.Timestamp == nil {
			return "", false
		}
		return strconv.FormatFloat(*ev.Timestamp, 'f', -1, 64), true
	default:
		return "", false
	}
}

// ResolveRaw looks the attribute up without string rendering. Operators
// distinguishing a null value from an empty string need this form; the
// rendered one collapses both to "".
func (a Attribute) ResolveRaw(ev Event) (value.Value, bool) {
	switch a.Type {
	case AttributeProperty:
		return ev.RawProperty(a.Name)
	case AttributeEventType:
		if len(ev.Types) == 0 {
			return value.Null(), false
		}
		return value.String(ev.Types[0]), true
	case AttributeTimestamp:
		if ev.Timestamp == nil {
			return value.Null(), false
		}
		return value.Double(*ev.Timestamp), true
	default:
		return value.Null(), false
	}
}

// Operand is one comparison argument of a condition. The server sends
// operands as constant wrappers; only the value matters to operators.
type Operand struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ConstantOperand builds the common constant operand.
func ConstantOperand(v string) Operand {
	return Operand{Type: "constant", Value: v}
}

// Filter is one node of a trigger expression: either a leaf condition or
// a boolean combinator over children. Exactly one of the two shapes is
// populated.
type Filter struct {
	// Combinator node
	Combinator Combinator
	Children   []*Filter

	// Leaf node
	Attribute Attribute
	Operator  string
	Operands  []Operand
}

// IsLeaf reports whether the node is a condition.
func (f *Filter) IsLeaf() bool { return f.Combinator == "" }

// Condition builds a leaf node.
func Condition(attr Attribute, operator string, operands ...Operand) *Filter {
	return &Filter{Attribute: attr, Operator: operator, Operands: operands}
}

// And builds a conjunction node.
func And(children ...*Filter) *Filter {
	return &Filter{Combinator: CombinatorAnd, Children: children}
}

// Or builds a disjunction node.
func Or(children ...*Filter) *Filter {
	return &Filter{Combinator: CombinatorOr, Children: children}
}

// Not builds a negation node over a single child.
func Not(child *Filter) *Filter {
	return &Filter{Combinator: CombinatorNot, Children: []*Filter{child}}
}

// OperandValues returns the raw operand values in order.
func (f *Filter) OperandValues() []string {
	out := make([]string, len(f.Operands))
	for i, op := range f.Operands {
		out[i] = op.Value
	}
	return out
}

// filterJSON is the wire shape of a filter node (snake_case, per server
// API schema).
type filterJSON struct {
	Type      string     `json:"type"`
	Filters   []*Filter  `json:"filters,omitempty"`
	Attribute *Attribute `json:"attribute,omitempty"`
	Operator  string     `json:"operator,omitempty"`
	Operands  []Operand  `json:"operands,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (f *Filter) MarshalJSON() ([]byte, error) {
	if f.IsLeaf() {
		attr := f.Attribute
		return json.Marshal(filterJSON{
			Type:      "condition",
			Attribute: &attr,
			Operator:  f.Operator,
			Operands:  f.Operands,
		})
	}
	return json.Marshal(filterJSON{
		Type:    string(f.Combinator),
		Filters: f.Children,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw filterJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Type {
	case "condition":
		f.Combinator = ""
		f.Children = nil
		if raw.Attribute != nil {
			f.Attribute = *raw.Attribute
		}
		f.Operator = raw.Operator
		f.Operands = raw.Operands
		return nil
	case string(CombinatorAnd), string(CombinatorOr), string(CombinatorNot):
		f.Combinator = Combinator(raw.Type)
		f.Children = raw.Filters
		return nil
	default:
		return fmt.Errorf("unknown filter node type %q", raw.Type)
	}
}

// String returns the serialized filter, used in non-match diagnostics.
func (f *Filter) String() string {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf("<unserializable filter: %v>", err)
	}
	return string(b)
}
