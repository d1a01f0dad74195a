// Package liststate holds the paging, sorting and filtering position of one
// remote collection view and the codec that maps it to query parameters.
package liststate

import (
	"maps"
	"slices"
	"strings"
)

const (
	DefaultCurrentPage = 1
	DefaultPageSize    = 10
	MaxPageSize        = 100
)

// SortOrder is the direction of one sort column
type SortOrder string

const (
	Ascend  SortOrder = "ascend"
	Descend SortOrder = "descend"
)

// Valid reports whether o is a known order
func (o SortOrder) Valid() bool {
	return o == Ascend || o == Descend
}

// SortItem is one column of a multi-column sort. The first item has priority.
type SortItem struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order"`
}

// Filter restricts one field to a list of accepted values.
type Filter struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// Filters is an ordered association list from field name to accepted values.
// Keys are opaque to the codec; the owning list documents its key domain.
type Filters []Filter

// Get returns the values for key.
func (f Filters) Get(key string) ([]string, bool) {
	for _, item := range f {
		if item.Key == key {
			return item.Values, true
		}
	}
	return nil, false
}

// Set replaces the values for key in place or appends a new entry.
func (f Filters) Set(key string, values []string) Filters {
	for i := range f {
		if f[i].Key == key {
			out := slices.Clone(f)
			out[i].Values = values
			return out
		}
	}
	return append(slices.Clone(f), Filter{Key: key, Values: values})
}

// Keys returns the filter keys in list order.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for _, item := range f {
		keys = append(keys, item.Key)
	}
	return keys
}

// Clone returns a deep copy.
func (f Filters) Clone() Filters {
	if f == nil {
		return nil
	}
	out := make(Filters, len(f))
	for i, item := range f {
		out[i] = Filter{Key: item.Key, Values: slices.Clone(item.Values)}
	}
	return out
}

// NormalizeFilters drops entries with no values. It returns nil when nothing is left.
func NormalizeFilters(f Filters) Filters {
	var out Filters
	for _, item := range f {
		if len(item.Values) == 0 {
			continue
		}
		out = out.Set(item.Key, slices.Clone(item.Values))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// EqualFilters compares the normalized forms of a and b. Entry order does not
// matter; value order does.
func EqualFilters(a, b Filters) bool {
	na, nb := NormalizeFilters(a), NormalizeFilters(b)
	if len(na) != len(nb) {
		return false
	}
	for _, item := range na {
		other, ok := nb.Get(item.Key)
		if !ok || !slices.Equal(item.Values, other) {
			return false
		}
	}
	return true
}

// EqualSort compares two sort lists by value.
func EqualSort(a, b []SortItem) bool {
	return slices.Equal(a, b)
}

// State is the canonical position of a list.
type State struct {
	CurrentPage int        `json:"currentPage"`
	PageSize    int        `json:"pageSize"`
	Filters     Filters    `json:"filters,omitempty"`
	Sort        []SortItem `json:"sort,omitempty"`

	// Extra holds list-specific parameters handled by Codec hooks.
	Extra map[string]string `json:"extra,omitempty"`
}

// Default returns the state used when a list supplies no initial state.
func Default() State {
	return State{CurrentPage: DefaultCurrentPage, PageSize: DefaultPageSize}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	s.Filters = s.Filters.Clone()
	s.Sort = slices.Clone(s.Sort)
	s.Extra = maps.Clone(s.Extra)
	return s
}

// Offset is the zero-based index of the first row of the current page.
func (s State) Offset() int {
	if s.CurrentPage < 1 || s.PageSize < 1 {
		return 0
	}
	return (s.CurrentPage - 1) * s.PageSize
}

// Equal compares normalized forms, so empty filter maps equal absent ones.
func Equal(a, b State) bool {
	if a.CurrentPage != b.CurrentPage || a.PageSize != b.PageSize {
		return false
	}
	if !EqualSort(nonEmptySort(a.Sort), nonEmptySort(b.Sort)) {
		return false
	}
	if !EqualFilters(a.Filters, b.Filters) {
		return false
	}
	return maps.Equal(normalizeExtra(a.Extra), normalizeExtra(b.Extra))
}

// Normalize returns the canonical form used for comparison and keys: empty
// filters and extras are dropped and filter entries are ordered by key.
func (s State) Normalize() State {
	out := s.Clone()
	out.Filters = NormalizeFilters(out.Filters)
	slices.SortStableFunc(out.Filters, func(a, b Filter) int { return strings.Compare(a.Key, b.Key) })
	out.Sort = nonEmptySort(out.Sort)
	out.Extra = normalizeExtra(out.Extra)
	if len(out.Extra) == 0 {
		out.Extra = nil
	}
	return out
}

func nonEmptySort(s []SortItem) []SortItem {
	if len(s) == 0 {
		return nil
	}
	return s
}

func normalizeExtra(m map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range m {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Partial is an update over a State. Nil fields keep the current value; a
// non-nil pointer to an empty slice clears filters or sort.
type Partial struct {
	CurrentPage *int              `json:"currentPage,omitempty"`
	PageSize    *int              `json:"pageSize,omitempty"`
	Filters     *Filters          `json:"filters,omitempty"`
	Sort        *[]SortItem       `json:"sort,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Merge returns s with every set field of p applied.
func (s State) Merge(p Partial) State {
	out := s.Clone()
	if p.CurrentPage != nil {
		out.CurrentPage = *p.CurrentPage
	}
	if p.PageSize != nil {
		out.PageSize = *p.PageSize
	}
	if p.Filters != nil {
		out.Filters = p.Filters.Clone()
	}
	if p.Sort != nil {
		out.Sort = slices.Clone(*p.Sort)
	}
	if len(p.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = map[string]string{}
		}
		maps.Copy(out.Extra, p.Extra)
	}
	return out
}

// Page builds a Partial that moves to page n with the given size.
func Page(n, size int) Partial {
	return Partial{CurrentPage: &n, PageSize: &size}
}
