// Package policy implements per-candidate display gating: date window,
// frequency state machine and event trigger matching, plus priority
// ranking among eligible candidates.
package policy

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
	"github.com/OrlandoBitencourt/nuntius/internal/filter"
)

// Input carries the runtime display state a candidate is judged against.
// It attaches after wire decoding and is never serialized with the
// candidate itself.
type Input struct {
	Now          time.Time
	SessionStart time.Time
	Status       domain.DisplayStatus

	// Event is nil for passive display (content blocks rendered without
	// a triggering event).
	Event *domain.Event
}

// Evaluator decides candidate eligibility. It is stateless apart from
// the shared filter engine and safe for concurrent use.
type Evaluator struct {
	engine *filter.Engine
	log    zerolog.Logger
}

// New creates an evaluator around the given filter engine.
func New(engine *filter.Engine, log zerolog.Logger) *Evaluator {
	return &Evaluator{engine: engine, log: log}
}

// PassesDateFilter reports whether now falls inside the candidate's
// display window. A disabled filter always passes; absent bounds are
// unbounded on that side.
func (e *Evaluator) PassesDateFilter(c *domain.Candidate, now time.Time) bool {
	df := c.DateFilter
	if !df.Enabled {
		return true
	}
	if df.StartDate != nil && now.Before(*df.StartDate) {
		return false
	}
	if df.EndDate != nil && now.After(*df.EndDate) {
		return false
	}
	return true
}

// PassesFrequencyFilter runs the frequency state machine against the
// persisted display status and the current session start.
func (e *Evaluator) PassesFrequencyFilter(c *domain.Candidate, status domain.DisplayStatus, sessionStart time.Time) bool {
	switch c.Frequency {
	case domain.FrequencyAlways:
		return true
	case domain.FrequencyOnlyOnce:
		return status.Displayed == nil
	case domain.FrequencyOncePerVisit:
		return status.Displayed == nil || status.Displayed.Before(sessionStart)
	case domain.FrequencyUntilVisitorInteracts:
		return status.Interacted == nil
	default:
		// Permissive default for unrecognized or absent frequency,
		// matching server-side behavior.
		e.log.Warn().
			Str("candidate", c.ID).
			Str("frequency", string(c.Frequency)).
			Msg("unknown frequency, treating as always")
		return true
	}
}

// PassesEventFilter matches the candidate's trigger against the event.
// An event may carry several type tags; any matching tag passes.
func (e *Evaluator) PassesEventFilter(c *domain.Candidate, ev domain.Event) bool {
	if c.Trigger == nil {
		return true
	}

	types := ev.Types
	if len(types) == 0 {
		types = []string{""}
	}
	for _, t := range types {
		tagged := ev
		tagged.Types = []string{t}
		if e.engine.Evaluate(c.Trigger, tagged) {
			return true
		}
	}

	// Observability only: the serialized filter plus the event explain
	// why nothing was shown.
	e.log.Debug().
		Str("candidate", c.ID).
		Str("filter", c.Trigger.String()).
		Strs("event_types", ev.Types).
		Msg("trigger did not match event")
	return false
}

// Eligible applies all three gates for one candidate.
func (e *Evaluator) Eligible(c *domain.Candidate, in Input) bool {
	if !e.PassesDateFilter(c, in.Now) {
		return false
	}
	if !e.PassesFrequencyFilter(c, in.Status, in.SessionStart) {
		return false
	}
	if in.Event != nil && !e.PassesEventFilter(c, *in.Event) {
		return false
	}
	return true
}

// StatusLookup resolves the persisted display status of a candidate id.
type StatusLookup func(candidateID string) domain.DisplayStatus

// FilterEligible returns the candidates passing all gates, preserving
// source order. statuses may be nil when no display history exists.
func (e *Evaluator) FilterEligible(cands []*domain.Candidate, in Input, statuses StatusLookup) []*domain.Candidate {
	var out []*domain.Candidate
	for _, c := range cands {
		perCandidate := in
		if statuses != nil {
			perCandidate.Status = statuses(c.ID)
		}
		if e.Eligible(c, perCandidate) {
			out = append(out, c)
		}
	}
	return out
}

// Rank orders candidates by priority descending; nil priority ranks
// lowest and ties keep source catalog order.
func Rank(cands []*domain.Candidate) []*domain.Candidate {
	out := make([]*domain.Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i]) > rank(out[j])
	})
	return out
}

func rank(c *domain.Candidate) int {
	if c.Priority == nil {
		return math.MinInt
	}
	return *c.Priority
}
