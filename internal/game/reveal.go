// internal/game/reveal.go
//
// The reveal gate: a time-boxed peek at the target color, usable once per
// attempt, with duration growing by 500ms per attempt. The gate stores a
// wall-clock deadline rather than owning a timer; every engine operation
// passes `now`, so an expiry that races a terminal transition is simply a
// deadline nobody consults anymore.

package game

import "time"

const (
	revealBase = 1000 * time.Millisecond
	revealStep = 500 * time.Millisecond
)

// revealGate tracks the reveal deadline and per-attempt consumption.
type revealGate struct {
	deadline time.Time // zero when no reveal is in flight
	used     bool      // reveal consumed for the current attempt
}

// Active reports whether a reveal is currently showing as of now.
func (r *revealGate) Active(now time.Time) bool {
	return !r.deadline.IsZero() && now.Before(r.deadline)
}

// Remaining reports how long the current reveal has left.
func (r *revealGate) Remaining(now time.Time) time.Duration {
	if !r.Active(now) {
		return 0
	}
	return r.deadline.Sub(now)
}

// arm starts a reveal at now for the given attempt and marks it consumed.
func (r *revealGate) arm(now time.Time, attempt int) time.Duration {
	d := RevealDuration(attempt)
	r.deadline = now.Add(d)
	r.used = true
	return d
}

// nextAttempt clears per-attempt consumption when the attempt counter moves.
func (r *revealGate) nextAttempt() {
	r.used = false
}

// clear drops any in-flight reveal. Called on terminal transitions so a
// late-firing expiry cannot touch post-game state.
func (r *revealGate) clear() {
	r.deadline = time.Time{}
	r.used = false
}

// RevealDuration is the reveal length for a 1-based attempt number:
// 1000ms on attempt 1, +500ms per later attempt (3500ms on attempt 6).
func RevealDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return revealBase + time.Duration(attempt-1)*revealStep
}

// RequestReveal opens the reveal gate for the current attempt.
// Rejected (no state change) when the game is over, a reveal is already
// showing, or the reveal was already consumed this attempt.
func (g *Game) RequestReveal(now time.Time) (time.Duration, error) {
	if g.GameOver {
		return 0, ErrGameOver
	}
	if g.reveal.Active(now) {
		return 0, ErrRevealActive
	}
	if g.reveal.used {
		return 0, ErrRevealUsed
	}
	return g.reveal.arm(now, g.Attempt), nil
}

// Revealing reports whether the reveal gate blocks guess submission as of now.
func (g *Game) Revealing(now time.Time) bool {
	return g.reveal.Active(now)
}
