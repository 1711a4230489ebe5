package nuntius

import (
	"github.com/OrlandoBitencourt/nuntius/internal/domain"
)

// Error classification helpers for callers that branch on failure kind.
// The core never panics across this boundary; failures surface as typed
// errors or as silently omitted data plus a diagnostic log line.

// IsNotFound reports whether err marks a missing resource.
func IsNotFound(err error) bool { return domain.IsNotFound(err) }

// IsFetchError reports whether err wraps a failed server fetch. Cached
// state is left untouched when a fetch fails.
func IsFetchError(err error) bool { return domain.IsFetchError(err) }

// IsValidationError reports whether err marks invalid configuration or
// input.
func IsValidationError(err error) bool { return domain.IsValidationError(err) }

// IsStopped reports whether err marks an operation skipped because the
// integration was stopped.
func IsStopped(err error) bool { return domain.IsStopped(err) }
