package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/collabforge/core/internal/logging"
)

// CheckpointStore is the narrow persistence seam a checkpoint sink writes
// through. It is intentionally tiny — durable op-log storage is out of
// scope, so the store only ever needs to remember the latest (version,
// content) pair per session, not a replayable history.
type CheckpointStore interface {
	SaveCheckpoint(sessionID string, version int, content string) error
}

// NewStoreCheckpointSink adapts a CheckpointStore into the CheckpointSink
// shape Registry.SetCheckpointSink expects, logging (not failing) storage
// errors since a missed checkpoint is recoverable from live session state.
func NewStoreCheckpointSink(store CheckpointStore) CheckpointSink {
	return func(sessionID string, version int, content string) {
		if err := store.SaveCheckpoint(sessionID, version, content); err != nil {
			logging.L().Warn("checkpoint save failed",
				zap.String("session_id", sessionID),
				zap.Int("version", version),
				zap.Error(err),
			)
		}
	}
}

// PeriodicSweeper snapshots every live session on an interval in addition to
// the opportunistic per-submit hook, guarding against a session that goes
// idle mid-edit (no further submits to trigger the inline checkpoint) from
// drifting arbitrarily far from its last saved state.
type PeriodicSweeper struct {
	registry *Registry
	store    CheckpointStore
	interval time.Duration
}

// NewPeriodicSweeper builds a sweeper; Run blocks until ctx is cancelled.
func NewPeriodicSweeper(registry *Registry, store CheckpointStore, interval time.Duration) *PeriodicSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PeriodicSweeper{registry: registry, store: store, interval: interval}
}

// Run snapshots every session in the registry once per interval until ctx is
// done. Intended to be started as a goroutine from cmd/server.
func (p *PeriodicSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

func (p *PeriodicSweeper) sweepOnce() {
	p.registry.mu.RLock()
	sessions := make([]*Session, 0, len(p.registry.sessions))
	for _, s := range p.registry.sessions {
		sessions = append(sessions, s)
	}
	p.registry.mu.RUnlock()

	for _, s := range sessions {
		version, content := s.Checkpoint()
		if err := p.store.SaveCheckpoint(s.ID(), version, content); err != nil {
			logging.L().Warn("periodic checkpoint failed", zap.String("session_id", s.ID()), zap.Error(err))
		}
	}
}
