package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"govconsole/internal/domain/governance"
	"govconsole/internal/domain/proposal"
	"govconsole/internal/liststate"
	"govconsole/internal/store/repositories"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// proposalRepository implements ProposalRepository over the proposals table
type proposalRepository struct {
	db DB
}

// NewProposalRepository creates a new proposal repository
func NewProposalRepository(db DB) repositories.ProposalRepository {
	return &proposalRepository{db: db}
}

// Upsert inserts the proposal or replaces the mirrored copy
func (r *proposalRepository) Upsert(ctx context.Context, p *proposal.Proposal) error {
	return upsertProposal(ctx, r.db, p)
}

// UpsertMany writes a batch in one transaction
func (r *proposalRepository) UpsertMany(ctx context.Context, ps []proposal.Proposal) error {
	if len(ps) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for i := range ps {
			if err := upsertProposal(ctx, tx, &ps[i]); err != nil {
				return fmt.Errorf("upsert proposal %d: %w", ps[i].ID, err)
			}
		}
		return nil
	})
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func upsertProposal(ctx context.Context, db execer, p *proposal.Proposal) error {
	votes, err := json.Marshal(p.Votes)
	if err != nil {
		return fmt.Errorf("encode votes: %w", err)
	}
	var result []byte
	if p.Result != nil {
		if result, err = json.Marshal(p.Result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	var detail []byte
	if len(p.Detail) > 0 {
		detail = p.Detail
	}

	_, err = db.Exec(ctx, `
		INSERT INTO proposals (id, initiator, description, proposal_type, detail, state, result, votes, created_at, updated_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (id) DO UPDATE
		SET initiator = EXCLUDED.initiator,
		    description = EXCLUDED.description,
		    proposal_type = EXCLUDED.proposal_type,
		    detail = EXCLUDED.detail,
		    state = EXCLUDED.state,
		    result = EXCLUDED.result,
		    votes = EXCLUDED.votes,
		    updated_at = EXCLUDED.updated_at,
		    synced_at = now()`,
		int64(p.ID), p.Initiator, p.Description, string(p.Type), detail,
		string(p.State), result, votes, p.Created, p.Updated)
	return err
}

// FindByID finds a mirrored proposal
func (r *proposalRepository) FindByID(ctx context.Context, id proposal.ID) (*proposal.Proposal, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals
		WHERE id = $1`, int64(id))

	p, err := scanProposal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositories.ErrNotFound
	}
	return p, err
}

// List returns one page of the mirror and the number of matching rows
func (r *proposalRepository) List(ctx context.Context, state liststate.State) ([]*proposal.Proposal, int, error) {
	q, err := BuildListQuery(state)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.QueryRow(ctx, q.Count, q.Args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count proposals: %w", err)
	}

	rows, err := r.db.Query(ctx, q.Select, q.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	proposals := []*proposal.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, 0, err
		}
		proposals = append(proposals, p)
	}
	return proposals, total, rows.Err()
}

// scanProposal scans a single row into a proposal
func scanProposal(row pgx.Row) (*proposal.Proposal, error) {
	var p proposal.Proposal
	var id int64
	var typ, state string
	var detail, result, votes []byte

	err := row.Scan(&id, &p.Initiator, &p.Description, &typ, &detail,
		&state, &result, &votes, &p.Created, &p.Updated)
	if err != nil {
		return nil, err
	}

	p.ID = proposal.ID(id)
	p.Type = governance.ProposalType(typ)
	p.State = proposal.State(state)
	if len(detail) > 0 {
		p.Detail = json.RawMessage(detail)
	}
	if len(result) > 0 {
		p.Result = &proposal.PerformResult{}
		if err := json.Unmarshal(result, p.Result); err != nil {
			return nil, fmt.Errorf("decode result of proposal %d: %w", id, err)
		}
	}
	p.Votes = []proposal.Vote{}
	if len(votes) > 0 {
		if err := json.Unmarshal(votes, &p.Votes); err != nil {
			return nil, fmt.Errorf("decode votes of proposal %d: %w", id, err)
		}
	}
	return &p, nil
}
