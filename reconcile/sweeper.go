package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-billing-sync/core"
)

type SweepStats struct {
	Claimed  int
	Resolved int
	Deferred int
}

// Sweeper re-drives pending sync skips. Each pass claims a batch, retries the
// underlying reconciliation, and resolves skips that now succeed. Skips whose
// precondition is still missing stay pending with an incremented attempt
// count.
type Sweeper struct {
	Skips      core.SkipStore
	Reconciler *Reconciler
	BatchSize  int
	Logger     core.Logger
}

func NewSweeper(skips core.SkipStore, reconciler *Reconciler) *Sweeper {
	return &Sweeper{
		Skips:      skips,
		Reconciler: reconciler,
		BatchSize:  50,
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	if s == nil || s.Skips == nil || s.Reconciler == nil {
		return SweepStats{}, fmt.Errorf("reconcile: sweeper requires skip store and reconciler")
	}

	batch := s.BatchSize
	if batch < 1 {
		batch = 50
	}
	pending, err := s.Skips.ListPending(ctx, batch)
	if err != nil {
		return SweepStats{}, fmt.Errorf("reconcile: list pending skips: %w", err)
	}

	stats := SweepStats{Claimed: len(pending)}
	for _, skip := range pending {
		syncErr := s.Reconciler.Sync(ctx, skip.Kind, skip.ExternalID)
		switch {
		case syncErr == nil:
			if err := s.Skips.Resolve(ctx, skip.ID); err != nil {
				return stats, fmt.Errorf("reconcile: resolve skip %q: %w", skip.ID, err)
			}
			stats.Resolved++
			s.logInfo("sync skip resolved",
				"kind", string(skip.Kind),
				"external_id", skip.ExternalID,
				"attempts", skip.Attempts,
			)
		case errors.Is(syncErr, ErrSyncSkipped):
			if err := s.Skips.Touch(ctx, skip.ID); err != nil {
				return stats, fmt.Errorf("reconcile: touch skip %q: %w", skip.ID, err)
			}
			stats.Deferred++
		default:
			if err := s.Skips.Touch(ctx, skip.ID); err != nil {
				return stats, fmt.Errorf("reconcile: touch skip %q: %w", skip.ID, err)
			}
			stats.Deferred++
			s.logError("sync skip retry failed",
				"kind", string(skip.Kind),
				"external_id", skip.ExternalID,
				"error", syncErr,
			)
		}
	}
	return stats, nil
}

func (s *Sweeper) logInfo(msg string, args ...any) {
	if s.Logger != nil {
		s.Logger.Info(msg, args...)
	}
}

func (s *Sweeper) logError(msg string, args ...any) {
	if s.Logger != nil {
		s.Logger.Error(msg, args...)
	}
}
