// Package mirror keeps the local proposal store in step with the canister.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"govconsole/internal/canister"
	"govconsole/internal/domain/governance"
	"govconsole/internal/metrics"
	"govconsole/internal/store/repositories"
)

// Source is the read side of the governance API
type Source interface {
	GetGovernance(ctx context.Context) (*governance.Governance, error)
	FetchChunk(ctx context.Context, chunk canister.Chunk) (*canister.ProposalsPage, error)
}

// Worker periodically copies every proposal and the governance
// configuration into the repositories
type Worker struct {
	api        Source
	proposals  repositories.ProposalRepository
	govs       repositories.GovernanceRepository
	metrics    *metrics.Metrics
	pollEvery  time.Duration
	chunk      int
	newBackOff func() backoff.BackOff
}

// NewWorker creates a sync worker
func NewWorker(
	api Source,
	proposals repositories.ProposalRepository,
	govs repositories.GovernanceRepository,
	m *metrics.Metrics,
	pollEvery time.Duration,
	chunk int,
) *Worker {
	if pollEvery == 0 {
		pollEvery = 30 * time.Second
	}
	if chunk <= 0 {
		chunk = 50
	}

	w := &Worker{
		api:       api,
		proposals: proposals,
		govs:      govs,
		metrics:   m,
		pollEvery: pollEvery,
		chunk:     chunk,
	}
	w.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.MaxInterval = w.pollEvery
		b.MaxElapsedTime = 0
		return b
	}
	return w
}

// SetBackOff replaces the delay policy used after a failed pass
func (w *Worker) SetBackOff(fn func() backoff.BackOff) {
	w.newBackOff = fn
}

// Run syncs immediately, then every pollEvery until ctx is cancelled. After a
// failed pass the next one is scheduled by the backoff policy instead.
func (w *Worker) Run(ctx context.Context) {
	log.Info().
		Dur("poll_every", w.pollEvery).
		Int("chunk", w.chunk).
		Msg("proposal sync worker started")

	b := w.newBackOff()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("proposal sync worker stopping")
			return
		case <-timer.C:
			wait := w.pollEvery
			if _, err := w.SyncOnce(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				if next := b.NextBackOff(); next != backoff.Stop {
					wait = next
				}
				log.Error().Err(err).Dur("retry_in", wait).Msg("proposal sync failed")
			} else {
				b.Reset()
			}
			timer.Reset(wait)
		}
	}
}

// SyncOnce runs one full pass and returns the number of proposals written
func (w *Worker) SyncOnce(ctx context.Context) (int, error) {
	start := time.Now()
	written, err := w.syncOnce(ctx)
	if err != nil {
		w.metrics.ObserveSync(metrics.SyncFailed, written)
		return written, err
	}
	w.metrics.ObserveSync(metrics.SyncOK, written)

	log.Debug().
		Int("written", written).
		Dur("took", time.Since(start)).
		Msg("proposal sync complete")
	return written, nil
}

func (w *Worker) syncOnce(ctx context.Context) (int, error) {
	if err := w.syncGovernance(ctx); err != nil {
		return 0, err
	}

	written := 0
	for start := 0; ; {
		page, err := w.api.FetchChunk(ctx, canister.Chunk{Start: start, Count: w.chunk})
		if err != nil {
			return written, fmt.Errorf("fetch proposals from %d: %w", start, err)
		}
		if err := w.proposals.UpsertMany(ctx, page.Proposals); err != nil {
			return written, fmt.Errorf("store proposals from %d: %w", start, err)
		}
		written += len(page.Proposals)
		start += len(page.Proposals)
		if len(page.Proposals) == 0 || start >= page.Total {
			return written, nil
		}
	}
}

// syncGovernance stores a snapshot when the configuration differs from the
// latest one
func (w *Worker) syncGovernance(ctx context.Context) error {
	g, err := w.api.GetGovernance(ctx)
	if err != nil {
		return fmt.Errorf("fetch governance: %w", err)
	}

	latest, err := w.govs.Latest(ctx)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load governance snapshot: %w", err)
	default:
		same, err := sameGovernance(latest, g)
		if err != nil {
			return err
		}
		if same {
			return nil
		}
	}

	if err := w.govs.Save(ctx, g); err != nil {
		return fmt.Errorf("save governance snapshot: %w", err)
	}
	log.Info().Int("participants", len(g.Participants)).Msg("governance snapshot updated")
	return nil
}

func sameGovernance(a, b *governance.Governance) (bool, error) {
	ab, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}
