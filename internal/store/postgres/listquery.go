package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"govconsole/internal/liststate"
	"govconsole/internal/store/repositories"
)

// SortColumns maps list sort fields to columns
var SortColumns = map[string]string{
	"id":      "id",
	"created": "created_at",
	"updated": "updated_at",
	"state":   "state",
	"type":    "proposal_type",
}

// FilterColumns maps list filter keys to columns
var FilterColumns = map[string]string{
	"state":     "state",
	"type":      "proposal_type",
	"initiator": "initiator",
}

const proposalColumns = `id, initiator, description, proposal_type, detail, state, result, votes, created_at, updated_at`

// ListQuery is a page query and its matching count query. Both take Args.
type ListQuery struct {
	Select string
	Count  string
	Args   []any
}

// BuildListQuery translates a list state into SQL. Filters become
// column = ANY($n); without a sort the newest proposals come first.
func BuildListQuery(s liststate.State) (ListQuery, error) {
	var where []string
	var args []any
	for _, f := range liststate.NormalizeFilters(s.Filters) {
		col, ok := FilterColumns[f.Key]
		if !ok {
			return ListQuery{}, fmt.Errorf("%w: unknown filter %q", repositories.ErrInvalidListQuery, f.Key)
		}
		args = append(args, f.Values)
		where = append(where, fmt.Sprintf("%s = ANY($%d)", col, len(args)))
	}

	order := make([]string, 0, len(s.Sort)+1)
	seenID := false
	for _, item := range s.Sort {
		col, ok := SortColumns[item.Field]
		if !ok {
			return ListQuery{}, fmt.Errorf("%w: unknown sort field %q", repositories.ErrInvalidListQuery, item.Field)
		}
		dir := "ASC"
		if item.Order == liststate.Descend {
			dir = "DESC"
		}
		order = append(order, col+" "+dir)
		seenID = seenID || col == "id"
	}
	if !seenID {
		order = append(order, "id DESC")
	}

	var filter string
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	pageSize := s.PageSize
	if pageSize < 1 || pageSize > liststate.MaxPageSize {
		pageSize = liststate.DefaultPageSize
	}
	page := s
	page.PageSize = pageSize

	return ListQuery{
		Select: "SELECT " + proposalColumns + " FROM proposals" + filter +
			" ORDER BY " + strings.Join(order, ", ") +
			" LIMIT " + strconv.Itoa(pageSize) + " OFFSET " + strconv.Itoa(page.Offset()),
		Count: "SELECT count(*) FROM proposals" + filter,
		Args:  args,
	}, nil
}
