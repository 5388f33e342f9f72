// internal/daily/journal.go
//
// Daily-mode persistence over the KV port: the in-progress game snapshot
// ("dailyGameState") and the completion record ("dailyCompletion") that
// locks the puzzle for the rest of the UTC day. Anything stored under a
// different date than "today" is treated as absent — a new day always
// starts fresh. Corrupt blobs are discarded the same way, never fatal.

package daily

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/colorle/go-server/internal/game"
	"github.com/colorle/go-server/internal/store"
)

const (
	stateKey      = "dailyGameState"
	completionKey = "dailyCompletion"
)

// Completion records the outcome of one UTC day's puzzle. A new record
// overwrites the prior one; only the row matching today's date gates play.
type Completion struct {
	Date string `json:"date"` // YYYY-MM-DD, UTC
	Won  bool   `json:"won"`
}

// Journal persists daily game state for one owner.
type Journal struct {
	kv store.KV
}

// NewJournal wraps a KV port.
func NewJournal(kv store.KV) *Journal {
	return &Journal{kv: kv}
}

// SaveState persists the full game snapshot. Called synchronously after
// every mutating transition so a crash loses no committed state.
func (j *Journal) SaveState(ctx context.Context, snap game.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return j.kv.Put(ctx, stateKey, raw)
}

// LoadState restores today's snapshot, or nil when nothing usable is
// stored: absent key, stale date, or corrupt JSON all read as "no saved
// state".
func (j *Journal) LoadState(ctx context.Context, today string) (*game.Snapshot, error) {
	raw, ok, err := j.kv.Get(ctx, stateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var snap game.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Warn().Err(err).Msg("discarding corrupt daily state")
		return nil, nil
	}
	if snap.Date != today {
		return nil, nil
	}
	return &snap, nil
}

// ClearState drops the stored snapshot.
func (j *Journal) ClearState(ctx context.Context) error {
	return j.kv.Delete(ctx, stateKey)
}

// SaveCompletion overwrites the completion record for date.
func (j *Journal) SaveCompletion(ctx context.Context, date string, won bool) error {
	raw, err := json.Marshal(Completion{Date: date, Won: won})
	if err != nil {
		return err
	}
	return j.kv.Put(ctx, completionKey, raw)
}

// LoadCompletion reports whether today's puzzle is already completed and,
// if so, whether it was won. A record from a prior date does not gate play.
func (j *Journal) LoadCompletion(ctx context.Context, today string) (completed bool, won bool, err error) {
	raw, ok, err := j.kv.Get(ctx, completionKey)
	if err != nil {
		return false, false, err
	}
	if !ok {
		return false, false, nil
	}
	var c Completion
	if err := json.Unmarshal(raw, &c); err != nil {
		log.Warn().Err(err).Msg("discarding corrupt daily completion")
		return false, false, nil
	}
	if c.Date != today {
		return false, false, nil
	}
	return true, c.Won, nil
}
