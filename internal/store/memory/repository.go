// Package memory keeps the proposal mirror in process. It backs tests and
// runs without a database.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"govconsole/internal/domain/governance"
	"govconsole/internal/domain/proposal"
	"govconsole/internal/liststate"
	"govconsole/internal/store/repositories"
)

var sortFields = map[string]func(a, b *proposal.Proposal) int{
	"id":      func(a, b *proposal.Proposal) int { return cmp.Compare(a.ID, b.ID) },
	"created": func(a, b *proposal.Proposal) int { return a.Created.Compare(b.Created) },
	"updated": func(a, b *proposal.Proposal) int { return a.Updated.Compare(b.Updated) },
	"state":   func(a, b *proposal.Proposal) int { return cmp.Compare(a.State, b.State) },
	"type":    func(a, b *proposal.Proposal) int { return cmp.Compare(a.Type, b.Type) },
}

var filterFields = map[string]func(p *proposal.Proposal) string{
	"state":     func(p *proposal.Proposal) string { return string(p.State) },
	"type":      func(p *proposal.Proposal) string { return string(p.Type) },
	"initiator": func(p *proposal.Proposal) string { return p.Initiator },
}

// ProposalRepository is an in-memory repositories.ProposalRepository.
type ProposalRepository struct {
	mu   sync.RWMutex
	byID map[proposal.ID]proposal.Proposal
}

func NewProposalRepository() *ProposalRepository {
	return &ProposalRepository{byID: map[proposal.ID]proposal.Proposal{}}
}

func (r *ProposalRepository) Upsert(_ context.Context, p *proposal.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = clone(p)
	return nil
}

func (r *ProposalRepository) UpsertMany(_ context.Context, ps []proposal.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range ps {
		r.byID[ps[i].ID] = clone(&ps[i])
	}
	return nil
}

func (r *ProposalRepository) FindByID(_ context.Context, id proposal.ID) (*proposal.Proposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := clone(&p)
	return &out, nil
}

// List applies the same whitelist and ordering as the Postgres mirror.
func (r *ProposalRepository) List(_ context.Context, s liststate.State) ([]*proposal.Proposal, int, error) {
	filters := liststate.NormalizeFilters(s.Filters)
	for _, f := range filters {
		if _, ok := filterFields[f.Key]; !ok {
			return nil, 0, fmt.Errorf("%w: unknown filter %q", repositories.ErrInvalidListQuery, f.Key)
		}
	}
	for _, item := range s.Sort {
		if _, ok := sortFields[item.Field]; !ok {
			return nil, 0, fmt.Errorf("%w: unknown sort field %q", repositories.ErrInvalidListQuery, item.Field)
		}
	}

	r.mu.RLock()
	matches := make([]*proposal.Proposal, 0, len(r.byID))
	for _, p := range r.byID {
		if accepts(filters, &p) {
			c := clone(&p)
			matches = append(matches, &c)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matches, func(a, b *proposal.Proposal) int {
		for _, item := range s.Sort {
			c := sortFields[item.Field](a, b)
			if item.Order == liststate.Descend {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(b.ID, a.ID)
	})

	pageSize := s.PageSize
	if pageSize < 1 || pageSize > liststate.MaxPageSize {
		pageSize = liststate.DefaultPageSize
	}
	page := s
	page.PageSize = pageSize
	start := min(page.Offset(), len(matches))
	end := min(start+pageSize, len(matches))
	return matches[start:end], len(matches), nil
}

func accepts(filters liststate.Filters, p *proposal.Proposal) bool {
	for _, f := range filters {
		if !slices.Contains(f.Values, filterFields[f.Key](p)) {
			return false
		}
	}
	return true
}

func clone(p *proposal.Proposal) proposal.Proposal {
	out := *p
	out.Votes = slices.Clone(p.Votes)
	out.Detail = slices.Clone(p.Detail)
	if p.Result != nil {
		r := *p.Result
		out.Result = &r
	}
	return out
}

// GovernanceRepository keeps snapshots in memory.
type GovernanceRepository struct {
	mu        sync.Mutex
	snapshots []governance.Governance
}

func NewGovernanceRepository() *GovernanceRepository {
	return &GovernanceRepository{}
}

func (r *GovernanceRepository) Save(_ context.Context, g *governance.Governance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, *g)
	return nil
}

func (r *GovernanceRepository) Latest(_ context.Context) (*governance.Governance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil, repositories.ErrNotFound
	}
	g := r.snapshots[len(r.snapshots)-1]
	return &g, nil
}

var (
	_ repositories.ProposalRepository   = (*ProposalRepository)(nil)
	_ repositories.GovernanceRepository = (*GovernanceRepository)(nil)
)
