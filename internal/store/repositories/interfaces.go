package repositories

import (
	"context"
	"errors"

	"govconsole/internal/domain/governance"
	"govconsole/internal/domain/proposal"
	"govconsole/internal/liststate"
)

var (
	// ErrNotFound is returned when a lookup matches nothing
	ErrNotFound = errors.New("not found")
	// ErrInvalidListQuery is returned for sort fields or filter keys a
	// repository does not support
	ErrInvalidListQuery = errors.New("invalid list query")
)

// ProposalRepository defines the contract for the proposal mirror
type ProposalRepository interface {
	Upsert(ctx context.Context, p *proposal.Proposal) error
	// UpsertMany writes all of ps or none of them.
	UpsertMany(ctx context.Context, ps []proposal.Proposal) error
	FindByID(ctx context.Context, id proposal.ID) (*proposal.Proposal, error)
	// List returns one page for state and the total number of matches.
	List(ctx context.Context, state liststate.State) ([]*proposal.Proposal, int, error)
}

// GovernanceRepository keeps snapshots of the governance configuration
type GovernanceRepository interface {
	Save(ctx context.Context, g *governance.Governance) error
	Latest(ctx context.Context) (*governance.Governance, error)
}
