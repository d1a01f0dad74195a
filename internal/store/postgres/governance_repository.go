package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"govconsole/internal/domain/governance"
	"govconsole/internal/store/repositories"

	"github.com/jackc/pgx/v5"
)

type governanceRepository struct {
	db DB
}

// NewGovernanceRepository creates a new governance snapshot repository
func NewGovernanceRepository(db DB) repositories.GovernanceRepository {
	return &governanceRepository{db: db}
}

// Save appends a snapshot
func (r *governanceRepository) Save(ctx context.Context, g *governance.Governance) error {
	body, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode governance: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO governance_snapshots (body) VALUES ($1)`, body)
	return err
}

// Latest returns the newest snapshot
func (r *governanceRepository) Latest(ctx context.Context) (*governance.Governance, error) {
	var body []byte
	err := r.db.QueryRow(ctx, `
		SELECT body
		FROM governance_snapshots
		ORDER BY id DESC
		LIMIT 1`).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var g governance.Governance
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, fmt.Errorf("decode governance: %w", err)
	}
	return &g, nil
}
