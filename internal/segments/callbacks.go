package segments

import (
	"reflect"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
)

// CallbackData is one registration of interest in a segment category.
// Registrations are 1:1 with a single category tag; the same underlying
// UI binding may register twice (newbie and regular) and both entries
// stay independent.
type CallbackData struct {
	// Category carries the tag only; its payload is ignored.
	Category domain.CategoryType

	// IncludeFirstLoad requests a one-time firing with the current
	// best-known data, before genuine changes start arriving.
	IncludeFirstLoad bool

	// OnNewData receives the category's DTO sequence on each firing.
	OnNewData func([]domain.SegmentDTO)
}

// matches reports structural equality between two registrations. The
// callback funcs compare by code pointer since Go funcs have no deeper
// value identity.
func (d CallbackData) matches(other CallbackData) bool {
	if d.Category != other.Category || d.IncludeFirstLoad != other.IncludeFirstLoad {
		return false
	}
	return reflect.ValueOf(d.OnNewData).Pointer() == reflect.ValueOf(other.OnNewData).Pointer()
}

// removeFirstMatch removes the first structural match from the slice.
func removeFirstMatch(list []CallbackData, data CallbackData) ([]CallbackData, bool) {
	for i, entry := range list {
		if entry.matches(data) {
			return append(list[:i:i], list[i+1:]...), true
		}
	}
	return list, false
}
