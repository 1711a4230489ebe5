package domain

import (
	"encoding/json"
	"sort"
)

// CategoryType tags a segment category. Category identity for set
// operations is the tag alone, never the payload.
type CategoryType string

const (
	CategoryDiscovery     CategoryType = "discovery"
	CategoryMerchandising CategoryType = "merchandising"
	CategoryContent       CategoryType = "content"
	CategoryOther         CategoryType = "other"
)

// KnownCategoryTypes lists the categories that participate in union and
// diff operations, in canonical order. CategoryOther never does.
var KnownCategoryTypes = []CategoryType{
	CategoryDiscovery,
	CategoryMerchandising,
	CategoryContent,
}

// SegmentDTO is one server-computed customer segment assignment. Identity
// for deduplication is the (ID, SegmentationID) pair.
type SegmentDTO struct {
	ID             string `json:"id"`
	SegmentationID string `json:"segmentation_id"`
}

// SegmentCategory is a tagged category carrying an ordered sequence of
// segment assignments.
type SegmentCategory struct {
	Type CategoryType
	Data []SegmentDTO
}

// NewSegmentCategory builds a category of the given tag.
func NewSegmentCategory(t CategoryType, data []SegmentDTO) SegmentCategory {
	return SegmentCategory{Type: t, Data: data}
}

// SameCategory reports tag equality, the category identity relation.
func (c SegmentCategory) SameCategory(other SegmentCategory) bool {
	return c.Type == other.Type
}

// DataSet returns the assignments as an unordered set keyed by the full
// (id, segmentationId) pair.
func (c SegmentCategory) DataSet() map[SegmentDTO]struct{} {
	set := make(map[SegmentDTO]struct{}, len(c.Data))
	for _, dto := range c.Data {
		set[dto] = struct{}{}
	}
	return set
}

// EqualData compares the assignment sets of two categories ignoring
// order and duplicates.
func (c SegmentCategory) EqualData(other SegmentCategory) bool {
	a, b := c.DataSet(), other.DataSet()
	if len(a) != len(b) {
		return false
	}
	for dto := range a {
		if _, ok := b[dto]; !ok {
			return false
		}
	}
	return true
}

// SegmentStore is the persisted segmentation snapshot for one customer
// identity. At most one snapshot exists at a time; synchronize replaces
// it wholesale.
type SegmentStore struct {
	CustomerIDs map[string]string
	Categories  []SegmentCategory
}

// Category returns the stored category of the given tag, if present.
func (s SegmentStore) Category(t CategoryType) (SegmentCategory, bool) {
	for _, c := range s.Categories {
		if c.Type == t {
			return c, true
		}
	}
	return SegmentCategory{}, false
}

// SameCustomer reports whether the snapshot belongs to the given customer
// identity (exact map equality).
func (s SegmentStore) SameCustomer(ids map[string]string) bool {
	if len(s.CustomerIDs) != len(ids) {
		return false
	}
	for k, v := range ids {
		if s.CustomerIDs[k] != v {
			return false
		}
	}
	return true
}

// segmentStoreJSON is the persisted wire shape: categories keyed by their
// string type tags so the union reconstructs from plain JSON.
type segmentStoreJSON struct {
	CustomerIDs map[string]string           `json:"customer_ids"`
	Segments    map[string][]SegmentDTO     `json:"segments"`
}

// MarshalJSON implements json.Marshaler.
func (s SegmentStore) MarshalJSON() ([]byte, error) {
	segs := make(map[string][]SegmentDTO, len(s.Categories))
	for _, c := range s.Categories {
		segs[string(c.Type)] = c.Data
	}
	return json.Marshal(segmentStoreJSON{
		CustomerIDs: s.CustomerIDs,
		Segments:    segs,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SegmentStore) UnmarshalJSON(data []byte) error {
	var raw segmentStoreJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.CustomerIDs = raw.CustomerIDs
	s.Categories = s.Categories[:0]

	// Canonical order keeps round-trips deterministic.
	types := make([]string, 0, len(raw.Segments))
	for t := range raw.Segments {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		s.Categories = append(s.Categories, SegmentCategory{
			Type: CategoryType(t),
			Data: raw.Segments[t],
		})
	}
	return nil
}

// SegmentData is the fetched server response shape for one customer.
type SegmentData struct {
	Categories []SegmentCategory
}

// segmentDataJSON mirrors the server payload: one array per category tag.
type segmentDataJSON struct {
	Segmentations map[string][]SegmentDTO `json:"segmentations"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *SegmentData) UnmarshalJSON(data []byte) error {
	var raw segmentDataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Categories = d.Categories[:0]
	types := make([]string, 0, len(raw.Segmentations))
	for t := range raw.Segmentations {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		d.Categories = append(d.Categories, SegmentCategory{
			Type: CategoryType(t),
			Data: raw.Segmentations[t],
		})
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d SegmentData) MarshalJSON() ([]byte, error) {
	segs := make(map[string][]SegmentDTO, len(d.Categories))
	for _, c := range d.Categories {
		segs[string(c.Type)] = c.Data
	}
	return json.Marshal(segmentDataJSON{Segmentations: segs})
}
