package liststate

import (
	"net/url"
	"strconv"
	"strings"
)

// Query parameter names, before the list prefix is applied.
const (
	KeySort        = "sort"
	KeyFilters     = "filters"
	KeyCurrentPage = "currentPage"
	KeyPageSize    = "pageSize"
)

// Keys lists the parameters owned by the codec.
var Keys = []string{KeySort, KeyFilters, KeyCurrentPage, KeyPageSize}

// ParamKey returns the query parameter name for key under prefix.
func ParamKey(key, prefix string) string {
	return prefix + key
}

// Params is a serialized state keyed by unprefixed parameter name. Every key the
// codec owns is present; an empty value means the parameter must be absent
// from the query.
type Params map[string]string

// Codec maps State to query parameters and back. The hooks let a list carry
// extra parameters next to the standard ones; standard keys win on conflict.
type Codec struct {
	SerializeExtra   func(s State, def State) map[string]string
	DeserializeExtra func(query url.Values, def State, prefix string) map[string]string
}

// Serialize renders s relative to def with the zero Codec.
func Serialize(s State, def State) Params {
	return Codec{}.Serialize(s, def)
}

// Deserialize reads a state from query with the zero Codec.
func Deserialize(query url.Values, def State, prefix string) State {
	return Codec{}.Deserialize(query, def, prefix)
}

// Serialize renders s relative to def. Values equal to the default are left
// empty so a default list keeps a clean URL. Zero page fields count as unset.
func (c Codec) Serialize(s State, def State) Params {
	out := Params{}
	if c.SerializeExtra != nil {
		for k, v := range c.SerializeExtra(s, def) {
			out[k] = v
		}
	}

	out[KeySort] = ""
	if len(s.Sort) > 0 && !EqualSort(s.Sort, def.Sort) {
		items := make([]string, 0, len(s.Sort))
		for _, item := range s.Sort {
			items = append(items, SerializeSortItem(item))
		}
		out[KeySort] = strings.Join(items, ",")
	}

	out[KeyFilters] = ""
	if filters := NormalizeFilters(s.Filters); filters != nil && !EqualFilters(filters, def.Filters) {
		pairs := make([]string, 0, len(filters))
		for _, f := range filters {
			pairs = append(pairs, serializeFilter(f))
		}
		out[KeyFilters] = strings.Join(pairs, ";")
	}

	out[KeyCurrentPage] = ""
	if s.CurrentPage > 0 && s.CurrentPage != def.CurrentPage {
		out[KeyCurrentPage] = strconv.Itoa(s.CurrentPage)
	}

	out[KeyPageSize] = ""
	if s.PageSize > 0 && s.PageSize != def.PageSize && s.PageSize <= MaxPageSize {
		out[KeyPageSize] = strconv.Itoa(s.PageSize)
	}

	return out
}

// Deserialize reads a state from query. Malformed or missing values fall back
// to def per field; it never fails.
func (c Codec) Deserialize(query url.Values, def State, prefix string) State {
	get := func(key string) (string, bool) {
		vs, ok := query[ParamKey(key, prefix)]
		if !ok || len(vs) == 0 {
			return "", false
		}
		return vs[0], true
	}

	var s State
	if c.DeserializeExtra != nil {
		if extra := c.DeserializeExtra(query, def, prefix); len(extra) > 0 {
			s.Extra = extra
		}
	}

	raw, ok := get(KeySort)
	s.Sort = DeserializeSort(raw, ok, def.Sort)

	raw, ok = get(KeyFilters)
	s.Filters = deserializeFilters(raw, ok, def.Filters)

	s.CurrentPage = def.CurrentPage
	if raw, ok = get(KeyCurrentPage); ok {
		if n, valid := ExtractValidPositiveInteger(raw); valid {
			s.CurrentPage = n
		}
	}

	s.PageSize = def.PageSize
	if raw, ok = get(KeyPageSize); ok {
		if n, valid := ExtractValidPositiveInteger(raw); valid && n <= MaxPageSize {
			s.PageSize = n
		}
	}

	return s
}

// SerializeSortItem renders ascending items as the escaped field name and
// descending ones with a leading minus. A leading minus in the field itself is
// escaped so it cannot be read as the order.
func SerializeSortItem(item SortItem) string {
	field := escape(item.Field)
	if strings.HasPrefix(field, "-") {
		field = "%2D" + field[1:]
	}
	if item.Order == Descend {
		return "-" + field
	}
	return field
}

// DeserializeSort parses a comma separated sort value. When the value is
// missing or yields no usable item, a non-empty def is returned, else nil.
func DeserializeSort(raw string, present bool, def []SortItem) []SortItem {
	fallback := func() []SortItem {
		if len(def) > 0 {
			return append([]SortItem(nil), def...)
		}
		return nil
	}
	if !present {
		return fallback()
	}

	var items []SortItem
	for _, part := range strings.Split(raw, ",") {
		item := SortItem{Field: part, Order: Ascend}
		if strings.HasPrefix(part, "-") {
			item = SortItem{Field: part[1:], Order: Descend}
		}
		item.Field = unescape(item.Field)
		if item.Field == "" {
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return fallback()
	}
	return items
}

func serializeFilter(f Filter) string {
	values := make([]string, 0, len(f.Values))
	for _, v := range f.Values {
		values = append(values, escape(v))
	}
	return escape(f.Key) + ":" + strings.Join(values, ",")
}

func deserializeFilters(raw string, present bool, def Filters) Filters {
	fallback := func() Filters {
		if len(def) > 0 {
			return def.Clone()
		}
		return nil
	}
	if !present {
		return fallback()
	}

	var out Filters
	for _, pair := range strings.Split(raw, ";") {
		key, values, ok := deserializeFilter(pair)
		if !ok {
			continue
		}
		out = out.Set(key, values)
	}
	if len(out) == 0 {
		return fallback()
	}
	return out
}

func deserializeFilter(pair string) (string, []string, bool) {
	key, rawValues, found := strings.Cut(pair, ":")
	if !found || key == "" || rawValues == "" {
		return "", nil, false
	}
	parts := strings.Split(rawValues, ",")
	values := make([]string, 0, len(parts))
	for _, v := range parts {
		values = append(values, unescape(v))
	}
	return unescape(key), values, true
}

// escape matches encodeURIComponent: spaces become %20, not '+'.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// unescape keeps the raw text when it is not valid percent-encoding.
func unescape(s string) string {
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return out
}
