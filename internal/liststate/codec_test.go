package liststate

import (
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefix = "x."

// toQuery applies params under prefix the way a url-state store would.
func toQuery(p Params) url.Values {
	q := url.Values{}
	for k, v := range p {
		if v != "" {
			q.Set(ParamKey(k, prefix), v)
		}
	}
	return q
}

func TestSerializeDefaultIsEmpty(t *testing.T) {
	def := Default()
	params := Serialize(def, def)
	for _, k := range Keys {
		v, ok := params[k]
		require.True(t, ok, "key %s missing", k)
		assert.Empty(t, v, "key %s", k)
	}
}

func TestSerializeSortOrder(t *testing.T) {
	s := Default()
	s.Sort = []SortItem{{Field: "a", Order: Descend}, {Field: "b", Order: Ascend}}
	params := Serialize(s, Default())
	assert.Equal(t, "-a,b", params[KeySort])

	back := Deserialize(toQuery(params), Default(), prefix)
	if diff := cmp.Diff(s.Sort, back.Sort); diff != "" {
		t.Fatalf("sort mismatch (-want +got):\n%s", diff)
	}
}

func TestSortFieldsWithReservedCharactersRoundTrip(t *testing.T) {
	sort := []SortItem{
		{Field: "a,b", Order: Descend},
		{Field: "50%", Order: Ascend},
		{Field: "-neg", Order: Ascend},
		{Field: "x y", Order: Descend},
	}
	raw := strings.Join([]string{
		SerializeSortItem(sort[0]), SerializeSortItem(sort[1]),
		SerializeSortItem(sort[2]), SerializeSortItem(sort[3]),
	}, ",")
	assert.Equal(t, "-a%2Cb,50%25,%2Dneg,-x%20y", raw)
	if diff := cmp.Diff(sort, DeserializeSort(raw, true, nil)); diff != "" {
		t.Fatalf("sort mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeSortEqualToDefaultOmitted(t *testing.T) {
	def := Default()
	def.Sort = []SortItem{{Field: "created", Order: Descend}}
	s := def.Clone()
	assert.Empty(t, Serialize(s, def)[KeySort])
}

func TestPageSizeClamp(t *testing.T) {
	s := Default()
	s.PageSize = 1000
	params := Serialize(s, Default())
	assert.Empty(t, params[KeyPageSize])

	back := Deserialize(toQuery(params), Default(), prefix)
	assert.Equal(t, DefaultPageSize, back.PageSize)

	q := url.Values{}
	q.Set("x.pageSize", "101")
	assert.Equal(t, DefaultPageSize, Deserialize(q, Default(), prefix).PageSize)
}

func TestMalformedFilterTolerance(t *testing.T) {
	q := url.Values{}
	q.Set("x.filters", "badpair;alsoNoColon")
	got := Deserialize(q, Default(), prefix)
	assert.Nil(t, got.Filters)

	def := Default()
	def.Filters = Filters{{Key: "state", Values: []string{"Voting"}}}
	got = Deserialize(q, def, prefix)
	assert.True(t, EqualFilters(def.Filters, got.Filters))
}

func TestFiltersEscaping(t *testing.T) {
	s := Default()
	s.Filters = Filters{
		{Key: "na me", Values: []string{"a,b", "c;d", "e:f"}},
		{Key: "state", Values: []string{"Voting"}},
	}
	params := Serialize(s, Default())
	assert.Equal(t, "na%20me:a%2Cb,c%3Bd,e%3Af;state:Voting", params[KeyFilters])

	back := Deserialize(toQuery(params), Default(), prefix)
	if diff := cmp.Diff(s.Filters, back.Filters); diff != "" {
		t.Fatalf("filters mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeDropsEmptyFilterEntries(t *testing.T) {
	s := Default()
	s.Filters = Filters{{Key: "empty"}, {Key: "state", Values: []string{"Approved"}}}
	assert.Equal(t, "state:Approved", Serialize(s, Default())[KeyFilters])

	s.Filters = Filters{{Key: "empty", Values: []string{}}}
	assert.Empty(t, Serialize(s, Default())[KeyFilters])
}

func TestRoundTrip(t *testing.T) {
	def := Default()
	cases := []State{
		{CurrentPage: 3, PageSize: 25},
		{CurrentPage: 1, PageSize: 100, Sort: []SortItem{{Field: "updated", Order: Descend}}},
		{
			CurrentPage: 7,
			PageSize:    10,
			Filters:     Filters{{Key: "type", Values: []string{"CallCanister", "UpgradeCanister"}}},
			Sort:        []SortItem{{Field: "state", Order: Ascend}, {Field: "id", Order: Descend}},
		},
	}
	for _, s := range cases {
		params := Serialize(s, def)
		back := Deserialize(toQuery(params), def, prefix)
		assert.True(t, Equal(s, back), "round trip of %+v gave %+v", s, back)

		again := Serialize(back, def)
		assert.Equal(t, params, again)
	}
}

func TestDeserializeMissingUsesDefault(t *testing.T) {
	def := State{
		CurrentPage: 2,
		PageSize:    20,
		Filters:     Filters{{Key: "state", Values: []string{"Voting"}}},
		Sort:        []SortItem{{Field: "id", Order: Descend}},
	}
	got := Deserialize(url.Values{}, def, prefix)
	assert.True(t, Equal(def, got))
}

func TestDeserializeBadNumbers(t *testing.T) {
	for _, raw := range []string{"", "abc", "0", "-3", "2.5", "NaN", "1e400"} {
		q := url.Values{}
		q.Set("x.currentPage", raw)
		q.Set("x.pageSize", raw)
		got := Deserialize(q, Default(), prefix)
		assert.Equal(t, DefaultCurrentPage, got.CurrentPage, "raw %q", raw)
		assert.Equal(t, DefaultPageSize, got.PageSize, "raw %q", raw)
	}
}

func TestDeserializeIgnoresOtherPrefixes(t *testing.T) {
	q := url.Values{}
	q.Set("y.currentPage", "4")
	q.Set("currentPage", "5")
	assert.Equal(t, DefaultCurrentPage, Deserialize(q, Default(), prefix).CurrentPage)
}

func TestDeserializeSortEdgeCases(t *testing.T) {
	assert.Nil(t, DeserializeSort(",,-", true, nil))
	assert.Equal(t,
		[]SortItem{{Field: "a b", Order: Descend}},
		DeserializeSort("-a%20b", true, nil))
	assert.Equal(t,
		[]SortItem{{Field: "%zz", Order: Ascend}},
		DeserializeSort("%zz", true, nil))
}

func TestCodecExtraHooks(t *testing.T) {
	codec := Codec{
		SerializeExtra: func(s State, _ State) map[string]string {
			return map[string]string{"search": s.Extra["search"], KeySort: "ignored"}
		},
		DeserializeExtra: func(q url.Values, _ State, p string) map[string]string {
			if v := q.Get(p + "search"); v != "" {
				return map[string]string{"search": v}
			}
			return nil
		},
	}
	s := Default()
	s.Extra = map[string]string{"search": "upgrade"}
	params := codec.Serialize(s, Default())
	assert.Equal(t, "upgrade", params["search"])
	assert.Empty(t, params[KeySort])

	back := codec.Deserialize(toQuery(params), Default(), prefix)
	assert.Equal(t, "upgrade", back.Extra["search"])
}

func TestMergeAndEqual(t *testing.T) {
	s := Default()
	empty := Filters{}
	merged := s.Merge(Partial{Filters: &empty})
	assert.True(t, Equal(s, merged))

	merged = s.Merge(Page(2, 25))
	assert.Equal(t, 2, merged.CurrentPage)
	assert.Equal(t, 25, merged.PageSize)
	assert.Equal(t, 25, merged.Offset())
	assert.False(t, Equal(s, merged))
}

func TestNormalizeOrdersFiltersByKey(t *testing.T) {
	s := State{
		CurrentPage: 1,
		PageSize:    10,
		Filters:     Filters{{Key: "type", Values: []string{"b", "a"}}, {Key: "empty"}, {Key: "state", Values: []string{"Voting"}}},
		Sort:        []SortItem{},
		Extra:       map[string]string{"x": ""},
	}
	n := s.Normalize()
	assert.Equal(t, []string{"state", "type"}, n.Filters.Keys())
	assert.Equal(t, []string{"b", "a"}, n.Filters[1].Values)
	assert.Nil(t, n.Sort)
	assert.Nil(t, n.Extra)
	assert.True(t, Equal(s, n))
}
