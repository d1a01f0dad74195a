package views

import (
	"bytes"
	"context"
	"encoding/json"

	"govconsole/internal/domain/governance"
	"govconsole/internal/domain/proposal"
	"govconsole/internal/liststate"
)

// TableChange is the on-change event of a data grid bound to a view
type TableChange struct {
	Pagination *TablePagination `json:"pagination,omitempty"`
	Filters    map[string]any   `json:"filters,omitempty"`
	Sorter     TableSorters     `json:"sorter,omitempty"`
}

type TablePagination struct {
	Current  int `json:"current"`
	PageSize int `json:"pageSize"`
}

// TableSorters accepts a single sorter object or a list of them
type TableSorters []liststate.TableSorter

func (s *TableSorters) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.HasPrefix(b, []byte("{")) {
		var one liststate.TableSorter
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*s = TableSorters{one}
		return nil
	}
	var many []liststate.TableSorter
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// enumFilters lists the accepted values of enumerated proposal columns
var enumFilters = map[string][]string{
	"state": enumValues(proposal.States),
	"type":  enumValues(governance.ProposalTypes),
}

func enumValues[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

// Partial converts the grid event into a list state update. Parts the grid
// did not send are left unchanged.
func (c TableChange) Partial() liststate.Partial {
	var p liststate.Partial
	if c.Pagination != nil {
		if n := c.Pagination.Current; n > 0 {
			p.CurrentPage = &n
		}
		if n := c.Pagination.PageSize; n > 0 {
			p.PageSize = &n
		}
	}
	if c.Filters != nil {
		filters := safeFilters(liststate.FiltersFromTable(c.Filters))
		p.Filters = &filters
	}
	if c.Sorter != nil {
		sort := liststate.SortFromTable(c.Sorter)
		p.Sort = &sort
	}
	return p
}

// safeFilters drops unknown values of enumerated columns, and the column
// when none is left.
func safeFilters(in liststate.Filters) liststate.Filters {
	var out liststate.Filters
	for _, f := range in {
		valid, enum := enumFilters[f.Key]
		if !enum {
			out = append(out, f)
			continue
		}
		var values []string
		for _, v := range f.Values {
			if safe, ok := liststate.SafeValue(v, valid); ok {
				values = append(values, safe)
			}
		}
		if len(values) > 0 {
			out = append(out, liststate.Filter{Key: f.Key, Values: values})
		}
	}
	return out
}

// ApplyTable applies a grid event and waits for the resulting fetch
func (v *View) ApplyTable(ctx context.Context, c TableChange) error {
	return v.Update(ctx, c.Partial())
}
