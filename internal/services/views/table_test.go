package views

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govconsole/internal/liststate"
)

func TestTableChangePartial(t *testing.T) {
	var c TableChange
	require.NoError(t, json.Unmarshal([]byte(`{
		"pagination": {"current": 2, "pageSize": 20},
		"filters": {"state": ["Voting", "Bogus", " Approved "], "type": [1, "CallCanister"], "initiator": ["alice"], "empty": null},
		"sorter": {"columnKey": "created", "order": "descend"}
	}`), &c))

	p := c.Partial()
	require.NotNil(t, p.CurrentPage)
	assert.Equal(t, 2, *p.CurrentPage)
	assert.Equal(t, 20, *p.PageSize)
	require.NotNil(t, p.Filters)
	assert.Equal(t, liststate.Filters{
		{Key: "initiator", Values: []string{"alice"}},
		{Key: "state", Values: []string{"Voting", "Approved"}},
	}, *p.Filters)
	require.NotNil(t, p.Sort)
	assert.Equal(t, []liststate.SortItem{{Field: "created", Order: liststate.Descend}}, *p.Sort)
}

func TestTableChangeLeavesUnsentPartsAlone(t *testing.T) {
	var c TableChange
	require.NoError(t, json.Unmarshal([]byte(`{"sorter": [{"columnKey": "id", "order": "ascend"}, {"columnKey": "", "order": "ascend"}]}`), &c))

	p := c.Partial()
	assert.Nil(t, p.CurrentPage)
	assert.Nil(t, p.PageSize)
	assert.Nil(t, p.Filters)
	require.NotNil(t, p.Sort)
	assert.Equal(t, []liststate.SortItem{{Field: "id", Order: liststate.Ascend}}, *p.Sort)
}

func TestApplyTableRefetches(t *testing.T) {
	p := &recordingProvider{}
	r := newRegistry(p, prometheus.NewRegistry())
	defer r.CloseAll()

	v, err := r.Open(context.Background(), "")
	require.NoError(t, err)

	err = v.ApplyTable(context.Background(), TableChange{
		Pagination: &TablePagination{Current: 3, PageSize: 5},
		Filters:    map[string]any{"state": []any{"Performed"}},
	})
	require.NoError(t, err)

	last := p.last()
	assert.Equal(t, 3, last.CurrentPage)
	assert.Equal(t, 5, last.PageSize)
	assert.Equal(t, liststate.Filters{{Key: "state", Values: []string{"Performed"}}}, last.Filters)
	assert.Len(t, v.Snapshot().RemoteData, 5)
}
