package liststate

import (
	"slices"
	"sort"
	"strings"
)

// TableSorter is the sort state reported by a data grid for one column.
type TableSorter struct {
	ColumnKey string `json:"columnKey"`
	Order     string `json:"order"`
}

// FiltersFromTable converts a grid's on-change filter map into Filters. Only
// non-empty lists of strings are kept; everything else is dropped. Keys are
// emitted in sorted order since the grid map carries none.
func FiltersFromTable(in map[string]any) Filters {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out Filters
	for _, k := range keys {
		values, ok := stringValues(in[k])
		if !ok || len(values) == 0 {
			continue
		}
		out = append(out, Filter{Key: k, Values: values})
	}
	return out
}

func stringValues(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return slices.Clone(t), true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// SortFromTable converts grid sorters into sort items, keeping their order.
// Sorters without a column or a known order are dropped.
func SortFromTable(sorters []TableSorter) []SortItem {
	var out []SortItem
	for _, s := range sorters {
		order := SortOrder(s.Order)
		if s.ColumnKey == "" || !order.Valid() {
			continue
		}
		out = append(out, SortItem{Field: s.ColumnKey, Order: order})
	}
	return out
}

// SafeValue returns the trimmed value when it is one of valid.
func SafeValue(value string, valid []string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" || !slices.Contains(valid, value) {
		return "", false
	}
	return value, true
}
