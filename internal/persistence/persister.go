package persistence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/leaderboard"
	"github.com/spec-kit/helpdesk-bot/internal/registry"
	"github.com/spec-kit/helpdesk-bot/internal/serializer"
)

// Persister saves snapshots of the registry and the leaderboard. Saves
// requested while one is pending coalesce into a single write. A failed
// save is logged and the next one writes the then current state.
type Persister struct {
	store       Store
	serializer  *serializer.Serializer
	tickets     *registry.Registry
	leaderboard *leaderboard.Aggregator
	logger      *zap.Logger
	saveTimeout time.Duration
	pending     chan struct{}
}

// PersisterDependencies bundles collaborators for the persister.
type PersisterDependencies struct {
	Store       Store
	Serializer  *serializer.Serializer
	Registry    *registry.Registry
	Leaderboard *leaderboard.Aggregator
	Logger      *zap.Logger
	SaveTimeout time.Duration
}

// NewPersister builds a persister. Run must be started for Trigger to
// have any effect.
func NewPersister(deps PersisterDependencies) *Persister {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.SaveTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Persister{
		store:       deps.Store,
		serializer:  deps.Serializer,
		tickets:     deps.Registry,
		leaderboard: deps.Leaderboard,
		logger:      logger.Named("persister"),
		saveTimeout: timeout,
		pending:     make(chan struct{}, 1),
	}
}

// Trigger requests a save without waiting for it.
func (p *Persister) Trigger() {
	select {
	case p.pending <- struct{}{}:
	default:
	}
}

// Run writes requested snapshots until ctx ends, then writes a final one.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// shutdown flush outlives ctx
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.saveTimeout)
			_ = p.SaveNow(final)
			cancel()
			return
		case <-p.pending:
			_ = p.SaveNow(ctx)
		}
	}
}

// SaveNow captures a consistent snapshot and writes it.
func (p *Persister) SaveNow(ctx context.Context) error {
	snap, err := p.Capture(ctx)
	if err != nil {
		p.logger.Error("snapshot capture failed", zap.Error(err))
		return err
	}

	saveCtx, cancel := context.WithTimeout(ctx, p.saveTimeout)
	defer cancel()
	if err := p.store.Save(saveCtx, snap); err != nil {
		p.logger.Error("snapshot save failed; will retry on next save", zap.Error(err))
		return err
	}
	p.logger.Debug("snapshot saved",
		zap.Int("tickets", len(snap.Tickets)),
		zap.Int("resolutions", len(snap.TicketResolutions)))
	return nil
}

// Capture copies the state while no ticket operation is running, so a
// resolve is never seen half applied.
func (p *Persister) Capture(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := p.serializer.Global(ctx, func(ctx context.Context) error {
		snap = NewSnapshot(p.tickets.Snapshot(), p.leaderboard.Snapshot())
		return nil
	})
	return snap, err
}

// LoadOptions control how a loaded snapshot is applied.
type LoadOptions struct {
	// RollingFrom, when set, rebuilds the rolling accumulator from log
	// records at or after this instant instead of trusting the document.
	RollingFrom *time.Time
}

// Load replaces the in-memory state with the stored document, if any.
// It must run before events are accepted.
func (p *Persister) Load(ctx context.Context, opts LoadOptions) (bool, error) {
	snap, ok, err := p.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		p.logger.Info("no snapshot found; starting empty")
		return false, nil
	}

	p.tickets.Restore(snap.RegistryState())
	p.leaderboard.Restore(snap.LeaderboardState())
	if opts.RollingFrom != nil {
		p.leaderboard.RebuildRolling(*opts.RollingFrom)
	}
	p.logger.Info("snapshot loaded",
		zap.Int("tickets", p.tickets.Len()),
		zap.Int("resolutions", p.leaderboard.Len()),
		zap.Bool("rolling_rebuilt", opts.RollingFrom != nil))
	return true, nil
}
