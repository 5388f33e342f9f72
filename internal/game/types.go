// internal/game/types.go
//
// Core type definitions for the Colorle game engine.
// Defines:
//   - Mode: play mode (daily/unlimited), a closed two-value variant.
//   - GuessRecord: one scored guess (hex + color error), immutable.
//   - Game: state for a single in-progress or finished game.
//   - Snapshot: JSON form of a Game for persistence/resume.

package game

import (
	"errors"
	"time"

	"github.com/colorle/go-server/internal/colormath"
)

// Mode selects the play mode for a session.
type Mode string

const (
	// ModeDaily is the shared, deterministic puzzle: one target per UTC
	// calendar day, one attempt-sequence per player per day.
	ModeDaily Mode = "daily"
	// ModeUnlimited re-rolls a random target on every restart.
	ModeUnlimited Mode = "unlimited"
)

// ParseMode validates a mode string from the wire.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDaily:
		return ModeDaily, nil
	case ModeUnlimited:
		return ModeUnlimited, nil
	}
	return "", errors.New("unknown mode")
}

// Sequencing errors: the operation arrived in a state that cannot accept
// it. All are recoverable; none mutates game state.
var (
	ErrGameOver     = errors.New("game finished")
	ErrRevealActive = errors.New("reveal in progress")
	ErrRevealUsed   = errors.New("reveal already used this attempt")
	ErrDailyLocked  = errors.New("daily puzzle already completed")
)

// MaxAttempts is the fixed guess limit per game.
const MaxAttempts = 6

// GuessRecord is one validated, scored guess. Records are immutable once
// appended; History order is submission order.
type GuessRecord struct {
	Hex        string  `json:"hex"`        // canonical 6 uppercase hex digits
	ColorError float64 `json:"colorError"` // Euclidean RGB distance to target
}

// Game holds the state of a single Colorle session.
// All fields are mutated only by engine operations; callers serialize
// access (concurrent operations are rejected upstream, not queued).
type Game struct {
	ID      string        // session identifier
	Mode    Mode          // daily or unlimited
	Target  string        // canonical target color, fixed for the session
	Attempt int           // 1-based attempt counter
	History []GuessRecord // scored guesses, length ≤ MaxAttempts

	GameOver bool // monotonic false→true
	Won      bool // valid only when GameOver

	reveal revealGate
}

// SnapshotRow is one rendered guess row: the scored guess plus the
// per-digit marks the UI shows, so a resumed grid is faithful.
type SnapshotRow struct {
	Hex        string                `json:"hex"`
	ColorError float64               `json:"colorError"`
	Marks      []colormath.Closeness `json:"marks"`
}

// Snapshot is the persisted JSON form of a Game. The daily journal stores
// it after every mutating transition and restores it on reload within the
// same UTC date.
type Snapshot struct {
	ID         string        `json:"id"`
	Mode       Mode          `json:"mode"`
	Date       string        `json:"date"` // YYYY-MM-DD, UTC; empty for unlimited
	Target     string        `json:"target"`
	Attempt    int           `json:"attempt"`
	GameOver   bool          `json:"gameOver"`
	Won        bool          `json:"won"`
	RevealUsed bool          `json:"revealUsed"` // reveal consumed for the current attempt
	Rows       []SnapshotRow `json:"rows"`
}

// Status is the display projection emitted after any transition.
type Status struct {
	Attempt          int   `json:"attempt"`
	MaxAttempts      int   `json:"maxAttempts"`
	GameOver         bool  `json:"gameOver"`
	Revealing        bool  `json:"revealing"`
	RevealDurationMs int64 `json:"revealDurationMs,omitempty"`
}

// StatusAt projects the display state as of now.
func (g *Game) StatusAt(now time.Time) Status {
	st := Status{
		Attempt:     g.Attempt,
		MaxAttempts: MaxAttempts,
		GameOver:    g.GameOver,
		Revealing:   g.reveal.Active(now),
	}
	if st.Revealing {
		st.RevealDurationMs = g.reveal.Remaining(now).Milliseconds()
	}
	return st
}
