// Package archive exports completed matches as JSON snapshots to object
// storage and restores them into a store.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/domain/model"
)

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

// RoundRecord is a round with its answer key, which model.Round keeps out
// of JSON.
type RoundRecord struct {
	model.Round
	CorrectIndex int `json:"correct_index"`
}

// Snapshot is the full persisted state of one match.
type Snapshot struct {
	Version    int              `json:"version"`
	ExportedAt time.Time        `json:"exported_at"`
	Match      model.Match      `json:"match"`
	Rounds     []RoundRecord    `json:"rounds"`
	Logs       []model.RoundLog `json:"logs"`
}

// Build reads a match with its rounds and logs.
func Build(ctx context.Context, store repository.Store, matchID string, now time.Time) (*Snapshot, error) {
	m, err := store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match %s: %w", matchID, err)
	}
	rounds, err := store.ListRounds(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load rounds of %s: %w", matchID, err)
	}
	logs, err := store.ListRoundLogs(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load logs of %s: %w", matchID, err)
	}
	snap := &Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: now.UTC(),
		Match:      *m,
		Rounds:     make([]RoundRecord, len(rounds)),
		Logs:       logs,
	}
	for i, r := range rounds {
		snap.Rounds[i] = RoundRecord{Round: r, CorrectIndex: r.CorrectIndex}
	}
	return snap, nil
}

// Key is the object key for a snapshot: matches/YYYY/MM/DD/<id>.json, dated
// by the match end (or start for unfinished matches).
func Key(m *model.Match) string {
	at := m.StartedAt
	if m.EndedAt != nil {
		at = *m.EndedAt
	}
	return fmt.Sprintf("matches/%s/%s.json", at.UTC().Format("2006/01/02"), m.ID)
}

// Restore writes snap into store. A match that already exists is left
// untouched, so restoring twice is harmless.
func Restore(ctx context.Context, store repository.Store, snap *Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.GetMatch(ctx, snap.Match.ID); err == nil {
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		m := snap.Match
		rounds := make([]model.Round, len(snap.Rounds))
		for i, rr := range snap.Rounds {
			rounds[i] = rr.Round
			rounds[i].CorrectIndex = rr.CorrectIndex
		}
		if err := tx.CreateMatch(ctx, &m, rounds); err != nil {
			return fmt.Errorf("restore match %s: %w", m.ID, err)
		}
		for i := range snap.Logs {
			l := snap.Logs[i]
			if err := tx.UpsertRoundLog(ctx, &l); err != nil {
				return fmt.Errorf("restore log of %s: %w", m.ID, err)
			}
		}
		return nil
	})
}
