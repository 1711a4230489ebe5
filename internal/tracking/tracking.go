// Package tracking defines the fire-and-forget event sink the core
// notifies on display and interaction decisions. Callers never await or
// branch on sink results.
package tracking

import (
	"sync"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
)

// Sink receives display and interaction notifications.
type Sink interface {
	ContentBlockShown(placeholderID string, candidate *domain.Candidate)
	ContentBlockClick(placeholderID string, candidate *domain.Candidate, action string)
	ContentBlockClose(placeholderID string, candidate *domain.Candidate)
	ContentBlockError(placeholderID string, candidate *domain.Candidate, message string)
	SegmentEvent(category domain.CategoryType, changed int)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) ContentBlockShown(string, *domain.Candidate)         {}
func (Nop) ContentBlockClick(string, *domain.Candidate, string) {}
func (Nop) ContentBlockClose(string, *domain.Candidate)         {}
func (Nop) ContentBlockError(string, *domain.Candidate, string) {}
func (Nop) SegmentEvent(domain.CategoryType, int)               {}

// Call records one sink invocation for assertions.
type Call struct {
	Kind        string
	Placeholder string
	CandidateID string
	Detail      string
}

// Recorder is a test sink capturing calls in order.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Calls returns a copy of the captured calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *Recorder) ContentBlockShown(placeholderID string, candidate *domain.Candidate) {
	r.record(Call{Kind: "shown", Placeholder: placeholderID, CandidateID: candidate.ID})
}

func (r *Recorder) ContentBlockClick(placeholderID string, candidate *domain.Candidate, action string) {
	r.record(Call{Kind: "click", Placeholder: placeholderID, CandidateID: candidate.ID, Detail: action})
}

func (r *Recorder) ContentBlockClose(placeholderID string, candidate *domain.Candidate) {
	r.record(Call{Kind: "close", Placeholder: placeholderID, CandidateID: candidate.ID})
}

func (r *Recorder) ContentBlockError(placeholderID string, candidate *domain.Candidate, message string) {
	r.record(Call{Kind: "error", Placeholder: placeholderID, CandidateID: candidate.ID, Detail: message})
}

func (r *Recorder) SegmentEvent(category domain.CategoryType, changed int) {
	r.record(Call{Kind: "segment", Detail: string(category)})
}
