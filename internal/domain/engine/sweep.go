package engine

import (
	"context"

	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

// SweepStats summarizes one sweeper pass.
type SweepStats struct {
	Scanned   int
	Completed int
	Abandoned int
}

// Sweep advances overdue rounds of ACTIVE matches nobody is polling and
// force-finalizes matches older than the abandon threshold. Failures on one
// match are logged and do not stop the pass.
func (e *Engine) Sweep(ctx context.Context) (SweepStats, error) {
	const op = "engine.sweep"
	var stats SweepStats
	active, err := e.store.ListActiveMatches(ctx, defaultSweepBatch)
	if err != nil {
		return stats, fault.Wrap(op, err)
	}
	now := e.now()
	for i := range active {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		m := &active[i]
		stats.Scanned++

		if now.Sub(m.StartedAt) >= e.abandonAfter {
			if _, err := e.finalize(ctx, m.ID, nil); err != nil {
				e.logger.Warn(ctx, "abandon finalize failed", logger.String("match_id", m.ID), logger.Error(err))
				metrics.RecordErrorByComponent("sweeper", string(fault.CodeOf(err)))
				continue
			}
			stats.Abandoned++
			metrics.RecordSweeperAction("abandon")
			continue
		}

		res, err := e.advance(ctx, m)
		if err != nil {
			e.logger.Warn(ctx, "sweep advance failed", logger.String("match_id", m.ID), logger.Error(err))
			metrics.RecordErrorByComponent("sweeper", string(fault.CodeOf(err)))
			continue
		}
		if res.MatchComplete {
			stats.Completed++
			metrics.RecordSweeperAction("finalize")
		}
	}
	if stats.Completed+stats.Abandoned > 0 {
		e.logger.Info(ctx, "sweep finished",
			logger.Int("scanned", stats.Scanned),
			logger.Int("completed", stats.Completed),
			logger.Int("abandoned", stats.Abandoned),
		)
	}
	return stats, nil
}
