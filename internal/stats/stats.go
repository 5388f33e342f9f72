// internal/stats/stats.go
//
// Cross-game statistics aggregation, tracked independently per play mode.
// A Record is the persisted accumulator; Derived metrics are computed on
// read and never stored. RecordGame folds exactly one completed game into
// the accumulators — abandoned games never reach it.

package stats

import (
	"context"
	"encoding/json"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/colorle/go-server/internal/colormath"
	"github.com/colorle/go-server/internal/game"
	"github.com/colorle/go-server/internal/store"
)

// Record is the per-mode persisted accumulator. Fields only grow, except
// CurrentStreak which resets to 0 on a loss.
type Record struct {
	GamesPlayed         int     `json:"gamesPlayed"`
	GamesWon            int     `json:"gamesWon"`
	GamesLost           int     `json:"gamesLost"`
	CurrentStreak       int     `json:"currentStreak"`
	MaxStreak           int     `json:"maxStreak"`
	TotalGuesses        int     `json:"totalGuessesAllGames"`
	TotalColorError     float64 `json:"totalColorErrorAllGuesses"`
	TotalErrorReduction float64 `json:"totalErrorReduction"`
}

// Derived holds the read-only metrics computed from a Record.
type Derived struct {
	WinPercentage    int     `json:"winPercentage"`    // round(100 * won/played)
	AvgGuesses       float64 `json:"avgGuesses"`       // guesses per game
	AvgColorAccuracy float64 `json:"avgColorAccuracy"` // percent, from mean color error
	GuessEfficiency  float64 `json:"guessEfficiency"`  // percent, from mean error reduction
}

// RecordGame folds one finished game into the accumulators.
// Error reduction is signed: a run of worsening guesses subtracts.
func (r *Record) RecordGame(won bool, history []game.GuessRecord) {
	r.GamesPlayed++
	if won {
		r.GamesWon++
		r.CurrentStreak++
		if r.CurrentStreak > r.MaxStreak {
			r.MaxStreak = r.CurrentStreak
		}
	} else {
		r.GamesLost++
		r.CurrentStreak = 0
	}

	r.TotalGuesses += len(history)
	for _, g := range history {
		r.TotalColorError += g.ColorError
	}
	for i := 1; i < len(history); i++ {
		r.TotalErrorReduction += history[i-1].ColorError - history[i].ColorError
	}
}

// Derive computes the display metrics, guarding every denominator.
// Efficiency needs at least one guess-to-guess transition across all games
// (TotalGuesses - GamesPlayed > 0); below that it reads 0.
func (r Record) Derive() Derived {
	var d Derived
	if r.GamesPlayed > 0 {
		d.WinPercentage = int(math.Round(100 * float64(r.GamesWon) / float64(r.GamesPlayed)))
		d.AvgGuesses = float64(r.TotalGuesses) / float64(r.GamesPlayed)
	}
	if r.TotalGuesses > 0 {
		avgErr := r.TotalColorError / float64(r.TotalGuesses)
		d.AvgColorAccuracy = (1 - avgErr/colormath.MaxColorError) * 100
	}
	if denom := r.TotalGuesses - r.GamesPlayed; denom > 0 {
		avgReduction := r.TotalErrorReduction / float64(denom)
		d.GuessEfficiency = avgReduction / colormath.MaxColorError * 100
	}
	return d
}

// Key is the KV key for a mode's Record: "gameStats_daily" / "gameStats_unlimited".
func Key(mode game.Mode) string {
	return "gameStats_" + string(mode)
}

// Load reads a mode's Record from the KV port. Absent or corrupt blobs
// yield a zero Record; corruption is logged and discarded, never fatal.
func Load(ctx context.Context, kv store.KV, mode game.Mode) Record {
	var r Record
	raw, ok, err := kv.Get(ctx, Key(mode))
	if err != nil {
		log.Warn().Err(err).Str("mode", string(mode)).Msg("load stats")
		return Record{}
	}
	if !ok {
		return Record{}
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		log.Warn().Err(err).Str("mode", string(mode)).Msg("discarding corrupt stats blob")
		return Record{}
	}
	return r
}

// Save writes a mode's Record through the KV port.
func Save(ctx context.Context, kv store.KV, mode game.Mode, r Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return kv.Put(ctx, Key(mode), raw)
}
