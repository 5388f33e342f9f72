// internal/game/engine.go
//
// Core game engine for a single Colorle session.
// Responsibilities:
//   - Create new games (random target for unlimited, injected for daily).
//   - Validate and apply guesses (length, hex alphabet, sequencing).
//   - Score guesses: per-digit closeness marks plus the color-error scalar.
//   - Track state transitions: playing → won/lost.
//
// Notes:
//   - All color math lives in the colormath package.
//   - The reveal gate (reveal.go) blocks submission while a reveal shows.
//   - Callers pass `now` explicitly; the engine owns no clock or timer.
package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/colorle/go-server/internal/colormath"
)

// New constructs a new game instance.
// If withTarget is empty, a random target is rolled (the unlimited default);
// daily sessions always inject the oracle's color. The target is normalized
// to canonical uppercase form.
func New(mode Mode, withTarget string) *Game {
	target := withTarget
	if target == "" {
		target = colormath.RandomColor()
	}
	if norm, err := colormath.NormalizeHex(target); err == nil {
		target = norm
	}
	return &Game{
		ID:      uuid.NewString(),
		Mode:    mode,
		Target:  target,
		Attempt: 1,
		History: []GuessRecord{},
	}
}

// SubmitGuess validates and scores a guess, mutating the game state.
// Returns: the per-digit closeness marks, the new state string
// ("playing"/"won"/"lost"), or an error.
//
// Rejections (no state change):
//   - Game already over.
//   - A reveal is currently showing.
//   - Guess is not exactly 6 characters or contains non-hex characters.
//
// State transitions:
//   - Guess equals target (after normalization) → won.
//   - Attempt limit reached without a match → lost.
//   - Otherwise the attempt counter advances and play continues.
func (g *Game) SubmitGuess(raw string, now time.Time) ([]colormath.Closeness, string, error) {
	if g.GameOver {
		return nil, g.State(), ErrGameOver
	}
	if g.reveal.Active(now) {
		return nil, g.State(), ErrRevealActive
	}
	guess, err := colormath.NormalizeHex(raw)
	if err != nil {
		return nil, g.State(), err
	}

	colorErr, err := colormath.HexColorError(guess, g.Target)
	if err != nil {
		return nil, g.State(), err
	}
	marks := colormath.ScoreGuess(guess, g.Target)
	g.History = append(g.History, GuessRecord{Hex: guess, ColorError: colorErr})

	switch {
	case guess == g.Target:
		g.GameOver, g.Won = true, true
		g.reveal.clear()
	case g.Attempt >= MaxAttempts:
		g.GameOver = true
		g.reveal.clear()
	default:
		g.Attempt++
		g.reveal.nextAttempt()
	}
	return marks, g.State(), nil
}

// Restart resets the session for another round.
// Unlimited mode always succeeds and rolls a fresh random target.
// Daily mode is rejected once the day's puzzle reached a terminal state;
// before that it resets counters/history against the same fixed target.
func (g *Game) Restart(now time.Time) error {
	if g.Mode == ModeDaily {
		if g.GameOver {
			return ErrDailyLocked
		}
	} else {
		g.Target = colormath.RandomColor()
	}
	g.Attempt = 1
	g.History = []GuessRecord{}
	g.GameOver = false
	g.Won = false
	g.reveal.clear()
	return nil
}

// State reports a coarse string representation of the current game state.
func (g *Game) State() string {
	if g.GameOver {
		if g.Won {
			return "won"
		}
		return "lost"
	}
	return "playing"
}

// LastError returns the color error of the most recent guess, or 0 if none.
func (g *Game) LastError() float64 {
	if len(g.History) == 0 {
		return 0
	}
	return g.History[len(g.History)-1].ColorError
}

// Snapshot renders the game into its persisted form, re-deriving the
// per-digit marks for each historical row.
func (g *Game) Snapshot(date string) Snapshot {
	rows := make([]SnapshotRow, 0, len(g.History))
	for _, rec := range g.History {
		rows = append(rows, SnapshotRow{
			Hex:        rec.Hex,
			ColorError: rec.ColorError,
			Marks:      colormath.ScoreGuess(rec.Hex, g.Target),
		})
	}
	return Snapshot{
		ID:         g.ID,
		Mode:       g.Mode,
		Date:       date,
		Target:     g.Target,
		Attempt:    g.Attempt,
		GameOver:   g.GameOver,
		Won:        g.Won,
		RevealUsed: g.reveal.used,
		Rows:       rows,
	}
}

// Restore rebuilds a Game from a persisted snapshot. The reveal deadline
// comes back closed — a reload never resumes mid-reveal — but per-attempt
// consumption survives, so a reload never grants a second reveal.
func Restore(s Snapshot) *Game {
	id := s.ID
	if id == "" {
		id = uuid.NewString()
	}
	g := &Game{
		ID:       id,
		Mode:     s.Mode,
		Target:   s.Target,
		Attempt:  s.Attempt,
		GameOver: s.GameOver,
		Won:      s.Won,
		History:  make([]GuessRecord, 0, len(s.Rows)),
	}
	if g.Attempt < 1 {
		g.Attempt = 1
	}
	g.reveal.used = s.RevealUsed
	for _, row := range s.Rows {
		g.History = append(g.History, GuessRecord{Hex: row.Hex, ColorError: row.ColorError})
	}
	return g
}
