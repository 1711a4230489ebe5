package filter

import (
	"strconv"
	"strings"
)

// anyArity marks operators accepting any operand count.
const anyArity = -1

// operatorFunc decides whether an attribute value passes. A nil value
// means the attribute is not set on the event. Operator functions are
// pure: same inputs, same verdict, no side effects.
type operatorFunc func(eventValue *string, operands []string) bool

type operator struct {
	arity int
	passes operatorFunc
}

// operators maps server operator names to their implementations. Several
// names are aliases sharing one implementation.
var operators = map[string]operator{
	"is":               {1, opEquals},
	"equals":           {1, opEquals},
	"does not equal":   {1, opNotEquals},
	"in":               {anyArity, opIn},
	"not in":           {anyArity, opNotIn},
	"contains":         {1, opContains},
	"does not contain": {1, opNotContains},
	"starts with":      {1, opStartsWith},
	"ends with":        {1, opEndsWith},
	"is set":           {0, opIsSet},
	"is not set":       {0, opIsNotSet},
	hasValueOperator:   {0, nil},
	hasNoValueOperator: {0, nil},
	"equal to":         {1, opNumberEquals},
	"less than":        {1, opLessThan},
	"greater than":     {1, opGreaterThan},
	"in between":       {2, opInBetween},
	"not between":      {2, opNotBetween},
}

// regex is handled by the engine itself because it needs the compiled
// program cache; its arity is still checked through this table.
const regexOperator = "regex"

// The nullness operators are also engine-handled: they read the raw
// attribute because string rendering cannot tell a null value from an
// empty string.
const (
	hasValueOperator   = "has value"
	hasNoValueOperator = "has no value"
)

func init() {
	operators[regexOperator] = operator{1, nil}
}

func opEquals(v *string, operands []string) bool {
	return v != nil && *v == operands[0]
}

func opNotEquals(v *string, operands []string) bool {
	// Absent value is "false", not "trivially unequal".
	return v != nil && *v != operands[0]
}

func opIn(v *string, operands []string) bool {
	if v == nil {
		return false
	}
	for _, op := range operands {
		if *v == op {
			return true
		}
	}
	return false
}

func opNotIn(v *string, operands []string) bool {
	if v == nil {
		return false
	}
	for _, op := range operands {
		if *v == op {
			return false
		}
	}
	return true
}

func opContains(v *string, operands []string) bool {
	return v != nil && strings.Contains(*v, operands[0])
}

func opNotContains(v *string, operands []string) bool {
	return v != nil && !strings.Contains(*v, operands[0])
}

func opStartsWith(v *string, operands []string) bool {
	return v != nil && strings.HasPrefix(*v, operands[0])
}

func opEndsWith(v *string, operands []string) bool {
	return v != nil && strings.HasSuffix(*v, operands[0])
}

func opIsSet(v *string, _ []string) bool {
	return v != nil
}

func opIsNotSet(v *string, _ []string) bool {
	return v == nil
}

// number parses both sides as floating point; any parse failure fails
// the comparison closed.
func number(v *string) (float64, bool) {
	if v == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(*v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func opNumberEquals(v *string, operands []string) bool {
	a, ok := number(v)
	if !ok {
		return false
	}
	b, ok := number(&operands[0])
	return ok && a == b
}

func opLessThan(v *string, operands []string) bool {
	a, ok := number(v)
	if !ok {
		return false
	}
	b, ok := number(&operands[0])
	return ok && a < b
}

func opGreaterThan(v *string, operands []string) bool {
	a, ok := number(v)
	if !ok {
		return false
	}
	b, ok := number(&operands[0])
	return ok && a > b
}

func opInBetween(v *string, operands []string) bool {
	a, ok := number(v)
	if !ok {
		return false
	}
	lo, okLo := number(&operands[0])
	hi, okHi := number(&operands[1])
	return okLo && okHi && a >= lo && a <= hi
}

func opNotBetween(v *string, operands []string) bool {
	a, ok := number(v)
	if !ok {
		// Negation only when the value is numeric; both range operators
		// fail on a non-numeric value.
		return false
	}
	lo, okLo := number(&operands[0])
	hi, okHi := number(&operands[1])
	return okLo && okHi && (a < lo || a > hi)
}
