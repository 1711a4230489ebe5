package policy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
	"github.com/OrlandoBitencourt/nuntius/internal/filter"
	"github.com/OrlandoBitencourt/nuntius/internal/value"
)

func testEvaluator() *Evaluator {
	return New(filter.New(zerolog.Nop()), zerolog.Nop())
}

func tp(t time.Time) *time.Time { return &t }

func ip(i int) *int { return &i }

var (
	now          = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	sessionStart = now.Add(-10 * time.Minute)
)

func TestPassesDateFilter(t *testing.T) {
	e := testEvaluator()

	c := &domain.Candidate{ID: "c1"}
	assert.True(t, e.PassesDateFilter(c, now), "disabled filter always passes")

	c.DateFilter = domain.DateFilter{
		Enabled:   true,
		StartDate: tp(now.Add(-time.Hour)),
		EndDate:   tp(now.Add(time.Hour)),
	}
	assert.True(t, e.PassesDateFilter(c, now))

	c.DateFilter.StartDate = tp(now.Add(time.Minute))
	assert.False(t, e.PassesDateFilter(c, now), "before window start")

	c.DateFilter.StartDate = nil
	c.DateFilter.EndDate = tp(now.Add(-time.Minute))
	assert.False(t, e.PassesDateFilter(c, now), "after window end")

	c.DateFilter = domain.DateFilter{Enabled: true}
	assert.True(t, e.PassesDateFilter(c, now), "enabled with no bounds is unbounded")
}

func TestPassesFrequencyFilter(t *testing.T) {
	e := testEvaluator()
	displayed := domain.DisplayStatus{Displayed: tp(now.Add(-time.Minute))}
	displayedLastVisit := domain.DisplayStatus{Displayed: tp(sessionStart.Add(-time.Hour))}
	interacted := domain.DisplayStatus{Interacted: tp(now.Add(-time.Minute))}

	cases := []struct {
		name      string
		frequency domain.Frequency
		status    domain.DisplayStatus
		want      bool
	}{
		{"always, displayed", domain.FrequencyAlways, displayed, true},
		{"only once, never displayed", domain.FrequencyOnlyOnce, domain.DisplayStatus{}, true},
		{"only once, displayed", domain.FrequencyOnlyOnce, displayed, false},
		{"once per visit, displayed this visit", domain.FrequencyOncePerVisit, displayed, false},
		{"once per visit, displayed last visit", domain.FrequencyOncePerVisit, displayedLastVisit, true},
		{"until interacts, only displayed", domain.FrequencyUntilVisitorInteracts, displayed, true},
		{"until interacts, interacted", domain.FrequencyUntilVisitorInteracts, interacted, false},
		{"unknown frequency is permissive", domain.Frequency("weekly"), displayed, true},
		{"absent frequency is permissive", domain.Frequency(""), displayed, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &domain.Candidate{ID: "c1", Frequency: tc.frequency}
			assert.Equal(t, tc.want, e.PassesFrequencyFilter(c, tc.status, sessionStart))
		})
	}
}

func TestPassesEventFilter(t *testing.T) {
	e := testEvaluator()

	trigger := domain.And(
		domain.Condition(domain.Attribute{Type: domain.AttributeEventType}, "equals", domain.ConstantOperand("payment")),
		domain.Condition(domain.Attribute{Type: domain.AttributeProperty, Name: "amount"}, "greater than", domain.ConstantOperand("10")),
	)
	c := &domain.Candidate{ID: "c1", Trigger: trigger}

	ev := domain.NewEvent("payment", map[string]value.Value{"amount": value.Int(15)})
	assert.True(t, e.PassesEventFilter(c, ev))

	ev = domain.NewEvent("page_view", map[string]value.Value{"amount": value.Int(15)})
	assert.False(t, e.PassesEventFilter(c, ev))

	assert.True(t, e.PassesEventFilter(&domain.Candidate{ID: "c2"}, ev), "no trigger matches everything")
}

func TestPassesEventFilter_MultiTypeOR(t *testing.T) {
	e := testEvaluator()

	trigger := domain.Condition(domain.Attribute{Type: domain.AttributeEventType}, "equals", domain.ConstantOperand("banner"))
	c := &domain.Candidate{ID: "c1", Trigger: trigger}

	ev := domain.Event{Types: []string{"page_view", "banner"}}
	assert.True(t, e.PassesEventFilter(c, ev), "any tag matching passes")

	ev = domain.Event{Types: []string{"page_view", "click"}}
	assert.False(t, e.PassesEventFilter(c, ev))
}

func TestEligible_AllGates(t *testing.T) {
	e := testEvaluator()

	trigger := domain.Condition(domain.Attribute{Type: domain.AttributeEventType}, "equals", domain.ConstantOperand("payment"))
	c := &domain.Candidate{
		ID:        "c1",
		Trigger:   trigger,
		Frequency: domain.FrequencyOnlyOnce,
		DateFilter: domain.DateFilter{
			Enabled: true,
			EndDate: tp(now.Add(time.Hour)),
		},
	}

	ev := domain.NewEvent("payment", nil)
	in := Input{Now: now, SessionStart: sessionStart, Event: &ev}
	assert.True(t, e.Eligible(c, in))

	in.Status = domain.DisplayStatus{Displayed: tp(now.Add(-time.Minute))}
	assert.False(t, e.Eligible(c, in), "frequency gate")

	in.Status = domain.DisplayStatus{}
	in.Now = now.Add(2 * time.Hour)
	assert.False(t, e.Eligible(c, in), "date gate")
}

func TestEligible_PassiveDisplaySkipsEventGate(t *testing.T) {
	e := testEvaluator()

	trigger := domain.Condition(domain.Attribute{Type: domain.AttributeEventType}, "equals", domain.ConstantOperand("never"))
	c := &domain.Candidate{ID: "c1", Trigger: trigger, Frequency: domain.FrequencyAlways}

	in := Input{Now: now, SessionStart: sessionStart}
	assert.True(t, e.Eligible(c, in), "nil event means passive display")
}

func TestFilterEligible_PerCandidateStatus(t *testing.T) {
	e := testEvaluator()

	cands := []*domain.Candidate{
		{ID: "seen", Frequency: domain.FrequencyOnlyOnce},
		{ID: "fresh", Frequency: domain.FrequencyOnlyOnce},
	}
	statuses := func(id string) domain.DisplayStatus {
		if id == "seen" {
			return domain.DisplayStatus{Displayed: tp(now.Add(-time.Minute))}
		}
		return domain.DisplayStatus{}
	}

	out := e.FilterEligible(cands, Input{Now: now, SessionStart: sessionStart}, statuses)
	assert.Len(t, out, 1)
	assert.Equal(t, "fresh", out[0].ID)
}

func TestRank(t *testing.T) {
	cands := []*domain.Candidate{
		{ID: "none"},
		{ID: "low", Priority: ip(5)},
		{ID: "high", Priority: ip(10)},
		{ID: "negative", Priority: ip(-3)},
		{ID: "low2", Priority: ip(5)},
	}

	out := Rank(cands)
	ids := make([]string, len(out))
	for i, c := range out {
		ids[i] = c.ID
	}
	// Higher first, nil last, ties keep source order.
	assert.Equal(t, []string{"high", "low", "low2", "negative", "none"}, ids)

	// Input untouched.
	assert.Equal(t, "none", cands[0].ID)
}
