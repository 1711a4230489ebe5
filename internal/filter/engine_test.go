package filter

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
	"github.com/OrlandoBitencourt/nuntius/internal/value"
)

func testEngine() *Engine {
	return New(zerolog.Nop())
}

func prop(name string) domain.Attribute {
	return domain.Attribute{Type: domain.AttributeProperty, Name: name}
}

func paymentEvent() domain.Event {
	return domain.NewEvent("payment", map[string]value.Value{
		"os":     value.String("ios"),
		"amount": value.Int(15),
		"email":  value.String("jane@example.com"),
	})
}

func TestEngine_NilFilterMatches(t *testing.T) {
	assert.True(t, testEngine().Evaluate(nil, paymentEvent()))
}

func TestEngine_LeafCondition(t *testing.T) {
	e := testEngine()
	ev := paymentEvent()

	f := domain.Condition(prop("os"), "equals", domain.ConstantOperand("ios"))
	assert.True(t, e.Evaluate(f, ev))

	f = domain.Condition(prop("os"), "equals", domain.ConstantOperand("android"))
	assert.False(t, e.Evaluate(f, ev))
}

func TestEngine_EventTypeAttribute(t *testing.T) {
	e := testEngine()
	f := domain.Condition(domain.Attribute{Type: domain.AttributeEventType}, "equals", domain.ConstantOperand("payment"))
	assert.True(t, e.Evaluate(f, paymentEvent()))
}

func TestEngine_NullnessOperators(t *testing.T) {
	e := testEngine()
	ev := domain.NewEvent("payment", map[string]value.Value{
		"coupon":   value.Null(),
		"referrer": value.String(""),
		"os":       value.String("ios"),
	})

	hasValue := func(name string) bool {
		return e.Evaluate(domain.Condition(prop(name), "has value"), ev)
	}
	hasNoValue := func(name string) bool {
		return e.Evaluate(domain.Condition(prop(name), "has no value"), ev)
	}

	// "has value" wants presence and non-nullness; an empty string is
	// still a value, a missing property is not "no value".
	assert.True(t, hasValue("os"))
	assert.True(t, hasValue("referrer"))
	assert.False(t, hasValue("coupon"))
	assert.False(t, hasValue("absent"))

	assert.True(t, hasNoValue("coupon"))
	assert.False(t, hasNoValue("referrer"))
	assert.False(t, hasNoValue("os"))
	assert.False(t, hasNoValue("absent"))
}

func TestEngine_Combinators(t *testing.T) {
	e := testEngine()
	ev := paymentEvent()

	ios := domain.Condition(prop("os"), "equals", domain.ConstantOperand("ios"))
	android := domain.Condition(prop("os"), "equals", domain.ConstantOperand("android"))
	bigAmount := domain.Condition(prop("amount"), "greater than", domain.ConstantOperand("10"))

	assert.True(t, e.Evaluate(domain.And(ios, bigAmount), ev))
	assert.False(t, e.Evaluate(domain.And(android, bigAmount), ev))
	assert.True(t, e.Evaluate(domain.Or(android, ios), ev))
	assert.False(t, e.Evaluate(domain.Or(android, android), ev))
	assert.True(t, e.Evaluate(domain.Not(android), ev))
	assert.False(t, e.Evaluate(domain.Not(ios), ev))
}

func TestEngine_EmptyCombinators(t *testing.T) {
	e := testEngine()
	ev := paymentEvent()

	// Vacuous truth for AND, vacuous falsity for OR.
	assert.True(t, e.Evaluate(domain.And(), ev))
	assert.False(t, e.Evaluate(domain.Or(), ev))
}

func TestEngine_MalformedNot(t *testing.T) {
	e := testEngine()
	ev := paymentEvent()

	ios := domain.Condition(prop("os"), "equals", domain.ConstantOperand("ios"))
	malformed := &domain.Filter{Combinator: domain.CombinatorNot, Children: []*domain.Filter{ios, ios}}
	assert.False(t, e.Evaluate(malformed, ev))
}

func TestEngine_InvalidLeafFailsOnlyItself(t *testing.T) {
	e := testEngine()
	ev := paymentEvent()

	unknown := domain.Condition(prop("os"), "resembles", domain.ConstantOperand("ios"))
	assert.False(t, e.Evaluate(unknown, ev))

	// The sibling branch still carries an OR.
	ios := domain.Condition(prop("os"), "equals", domain.ConstantOperand("ios"))
	assert.True(t, e.Evaluate(domain.Or(unknown, ios), ev))
}

func TestEngine_ArityMismatch(t *testing.T) {
	e := testEngine()
	ev := paymentEvent()

	f := domain.Condition(prop("os"), "equals", domain.ConstantOperand("ios"), domain.ConstantOperand("android"))
	assert.False(t, e.Evaluate(f, ev))

	f = domain.Condition(prop("amount"), "in between", domain.ConstantOperand("10"))
	assert.False(t, e.Evaluate(f, ev))
}

func TestEngine_Regex(t *testing.T) {
	e := testEngine()
	ev := paymentEvent()

	f := domain.Condition(prop("email"), "regex", domain.ConstantOperand(`@example\.com$`))
	assert.True(t, e.Evaluate(f, ev))

	f = domain.Condition(prop("email"), "regex", domain.ConstantOperand(`@other\.org$`))
	assert.False(t, e.Evaluate(f, ev))

	// Absent attribute never matches.
	f = domain.Condition(prop("missing"), "regex", domain.ConstantOperand(`.*`))
	assert.False(t, e.Evaluate(f, ev))
}

func TestEngine_RegexProgramCached(t *testing.T) {
	e := testEngine()
	ev := paymentEvent()

	f := domain.Condition(prop("email"), "regex", domain.ConstantOperand(`jane`))
	assert.True(t, e.Evaluate(f, ev))
	assert.True(t, e.Evaluate(f, ev))

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Len(t, e.programCache, 1)
}

func TestEngine_RegexCompileFailure(t *testing.T) {
	e := testEngine()
	f := domain.Condition(prop("email"), "regex", domain.ConstantOperand(`([`))
	assert.False(t, e.Evaluate(f, paymentEvent()))
}

func TestEngine_NestedExpression(t *testing.T) {
	e := testEngine()
	ev := paymentEvent()

	// (os in {ios, android}) AND NOT (amount not between 10..20)
	f := domain.And(
		domain.Condition(prop("os"), "in", domain.ConstantOperand("ios"), domain.ConstantOperand("android")),
		domain.Not(
			domain.Condition(prop("amount"), "not between", domain.ConstantOperand("10"), domain.ConstantOperand("20")),
		),
	)
	assert.True(t, e.Evaluate(f, ev))
}
