// internal/httpserver/routes_game.go
//
// Game session endpoints.
//   - POST /game/new      → start (or resume, daily) a session
//   - POST /game/guess    → submit a 6-hex-digit guess
//   - POST /game/reveal   → open the time-boxed target reveal
//   - POST /game/restart  → new round (unlimited) / reset (daily, pre-completion)
//   - GET  /stats         → per-mode statistics for the current player
//
// Sessions are held in memory for active play; daily-mode state, stats,
// and the completion record are written through the owner's KV view after
// every mutating transition, before the response goes out. Operations on
// one session are serialized with TryLock: a request that catches the
// session mid-transition is rejected with "engine_busy", never queued.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/colorle/go-server/internal/colormath"
	"github.com/colorle/go-server/internal/daily"
	"github.com/colorle/go-server/internal/game"
	"github.com/colorle/go-server/internal/stats"
	"github.com/colorle/go-server/internal/store"
)

// session wraps one live game with its owner and serialization lock.
type session struct {
	mu      sync.Mutex
	g       *game.Game
	owner   string
	date    string    // YYYY-MM-DD for daily sessions, "" for unlimited
	touched time.Time // last lookup; sweepSessions evicts idle entries
}

// sessionTTL bounds how long an idle session stays resident.
const sessionTTL = 24 * time.Hour

// mountGame registers session and stats routes.
func (s *Server) mountGame(r chi.Router) {
	r.Route("/game", func(r chi.Router) {
		r.Post("/new", s.handleNewGame)
		r.Post("/guess", s.handleGuess)
		r.Post("/reveal", s.handleReveal)
		r.Post("/restart", s.handleRestart)
	})
	r.Get("/stats", s.handleStats)
}

// kvFor returns the owner-scoped KV view backing stats and daily state.
func (s *Server) kvFor(owner string) store.KV {
	return store.ForOwner(s.db, owner)
}

// findSession looks up a live session owned by the caller.
func (s *Server) findSession(gameID, owner string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[gameID]
	if sess == nil || sess.owner != owner {
		return nil
	}
	sess.touched = time.Now()
	return sess
}

// sweepSessions drops stale entries so the tables stay bounded in a
// long-lived process: daily sessions from prior UTC dates (the completion
// record and journal own that state now) and anything idle past
// sessionTTL. Caller holds s.mu.
func (s *Server) sweepSessions(now time.Time, today string) {
	for id, sess := range s.sessions {
		stale := sess.date != "" && sess.date != today
		if stale || now.Sub(sess.touched) > sessionTTL {
			delete(s.sessions, id)
			if sess.date != "" {
				delete(s.dailyIdx, sess.owner+"|"+sess.date)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// /game/new

type newGameReq struct {
	Mode string `json:"mode"` // "daily" | "unlimited"
}

type newGameRes struct {
	GameID string             `json:"gameId"`
	Mode   game.Mode          `json:"mode"`
	Date   string             `json:"date,omitempty"`
	Rows   []game.SnapshotRow `json:"rows"` // non-empty when resuming a daily game
	Status game.Status        `json:"status"`
}

// handleNewGame starts a session.
// Unlimited: always a fresh random target.
// Daily: target comes from the oracle; a saved snapshot for today resumes,
// and a completion record for today locks the puzzle (409 already_played).
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Mode == "" {
		req.Mode = string(game.ModeUnlimited)
	}
	mode, err := game.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, `{"error":"unknown_mode"}`, http.StatusBadRequest)
		return
	}
	owner := s.ownerID(w, r)

	now := time.Now().UTC()
	s.mu.Lock()
	s.sweepSessions(now, daily.DateKey(now))
	s.mu.Unlock()

	if mode == game.ModeDaily {
		s.newDailyGame(w, r, owner)
		return
	}

	g := game.New(game.ModeUnlimited, "")
	sess := &session{g: g, owner: owner, touched: now}
	s.mu.Lock()
	s.sessions[g.ID] = sess
	s.mu.Unlock()

	_ = json.NewEncoder(w).Encode(newGameRes{
		GameID: g.ID,
		Mode:   g.Mode,
		Rows:   []game.SnapshotRow{},
		Status: g.StatusAt(time.Now()),
	})
}

// newDailyGame creates or resumes the caller's daily session for today.
func (s *Server) newDailyGame(w http.ResponseWriter, r *http.Request, owner string) {
	if len(s.dailySecret) == 0 {
		http.Error(w, `{"error":"secret_not_configured"}`, http.StatusInternalServerError)
		return
	}
	now := time.Now().UTC()
	today := daily.DateKey(now)
	journal := daily.NewJournal(s.kvFor(owner))

	completed, won, err := journal.LoadCompletion(r.Context(), today)
	if err != nil {
		log.Warn().Err(err).Msg("load daily completion")
	}
	if completed {
		res := map[string]any{"error": "already_played", "date": today, "won": won}
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(res)
		return
	}

	// Reuse the live session for today if one exists.
	idxKey := owner + "|" + today
	s.mu.Lock()
	if id, ok := s.dailyIdx[idxKey]; ok {
		if sess := s.sessions[id]; sess != nil {
			sess.touched = now
			s.mu.Unlock()
			snap := sess.g.Snapshot(today)
			_ = json.NewEncoder(w).Encode(newGameRes{
				GameID: sess.g.ID, Mode: sess.g.Mode, Date: today,
				Rows: snap.Rows, Status: sess.g.StatusAt(now),
			})
			return
		}
	}
	s.mu.Unlock()

	// Resume a persisted snapshot from an earlier process, or start fresh.
	var g *game.Game
	if snap, err := journal.LoadState(r.Context(), today); err == nil && snap != nil {
		if snap.GameOver {
			// A terminal snapshot means the day is spent even if the
			// completion write never landed; repair the record and lock.
			if err := journal.SaveCompletion(r.Context(), today, snap.Won); err != nil {
				log.Warn().Err(err).Msg("repair daily completion")
			}
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": "already_played", "date": today, "won": snap.Won,
			})
			return
		}
		g = game.Restore(*snap)
	} else {
		if err != nil {
			log.Warn().Err(err).Msg("load daily state")
		}
		g = game.New(game.ModeDaily, daily.Color(s.dailySecret, now))
	}

	sess := &session{g: g, owner: owner, date: today, touched: now}
	s.mu.Lock()
	s.sessions[g.ID] = sess
	s.dailyIdx[idxKey] = g.ID
	s.mu.Unlock()

	if err := journal.SaveState(r.Context(), g.Snapshot(today)); err != nil {
		log.Warn().Err(err).Msg("save daily state")
	}

	snap := g.Snapshot(today)
	_ = json.NewEncoder(w).Encode(newGameRes{
		GameID: g.ID, Mode: g.Mode, Date: today,
		Rows: snap.Rows, Status: g.StatusAt(now),
	})
}

// -----------------------------------------------------------------------------
// /game/guess

type guessReq struct {
	GameID string `json:"gameId"`
	Guess  string `json:"guess"`
}

type guessRes struct {
	Marks      []colormath.Closeness `json:"marks"`
	ColorError float64               `json:"colorError"`
	State      string                `json:"state"` // "playing" | "won" | "lost"
	Status     game.Status           `json:"status"`
	Target     string                `json:"target,omitempty"` // revealed once the game ends
}

// handleGuess validates and applies a guess, then persists daily state and
// (on a terminal transition) stats + completion before responding.
func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	owner := s.ownerID(w, r)
	sess := s.findSession(req.GameID, owner)
	if sess == nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	if !sess.mu.TryLock() {
		http.Error(w, `{"error":"engine_busy"}`, http.StatusConflict)
		return
	}
	defer sess.mu.Unlock()

	now := time.Now().UTC()
	g := sess.g
	wasOver := g.GameOver

	marks, state, err := g.SubmitGuess(req.Guess, now)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// On a terminal transition the completion record goes down first: a
	// crash after it still locks the day, while a terminal snapshot with
	// no completion would read as a replayable game.
	if !wasOver && g.GameOver {
		s.recordFinished(r.Context(), sess)
	}
	if sess.date != "" {
		s.persistDaily(r.Context(), sess, now)
	}

	res := guessRes{
		Marks:      marks,
		ColorError: g.LastError(),
		State:      state,
		Status:     g.StatusAt(now),
	}
	if g.GameOver {
		res.Target = g.Target
	}
	_ = json.NewEncoder(w).Encode(res)
}

// -----------------------------------------------------------------------------
// /game/reveal

type revealReq struct {
	GameID string `json:"gameId"`
}

type revealRes struct {
	DurationMs int64       `json:"durationMs"`
	Target     string      `json:"target"`
	Status     game.Status `json:"status"`
}

// handleReveal opens the reveal gate and returns the target plus how long
// the caller may show it. The gate re-closes by deadline; no server timer.
func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req revealReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	owner := s.ownerID(w, r)
	sess := s.findSession(req.GameID, owner)
	if sess == nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	if !sess.mu.TryLock() {
		http.Error(w, `{"error":"engine_busy"}`, http.StatusConflict)
		return
	}
	defer sess.mu.Unlock()

	now := time.Now().UTC()
	d, err := sess.g.RequestReveal(now)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(revealRes{
		DurationMs: d.Milliseconds(),
		Target:     sess.g.Target,
		Status:     sess.g.StatusAt(now),
	})
}

// -----------------------------------------------------------------------------
// /game/restart

type restartReq struct {
	GameID string `json:"gameId"`
}

type restartRes struct {
	State  string      `json:"state"`
	Status game.Status `json:"status"`
}

// handleRestart resets the session. Unlimited rolls a new target; daily is
// rejected once completed and otherwise resets against the same target.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req restartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	owner := s.ownerID(w, r)
	sess := s.findSession(req.GameID, owner)
	if sess == nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	if !sess.mu.TryLock() {
		http.Error(w, `{"error":"engine_busy"}`, http.StatusConflict)
		return
	}
	defer sess.mu.Unlock()

	now := time.Now().UTC()
	if err := sess.g.Restart(now); err != nil {
		writeEngineError(w, err)
		return
	}
	if sess.date != "" {
		s.persistDaily(r.Context(), sess, now)
	}
	_ = json.NewEncoder(w).Encode(restartRes{
		State:  sess.g.State(),
		Status: sess.g.StatusAt(now),
	})
}

// -----------------------------------------------------------------------------
// /stats

type modeStatsRes struct {
	Record  stats.Record  `json:"record"`
	Derived stats.Derived `json:"derived"`
}

// handleStats returns both modes' accumulators and derived metrics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	owner := s.ownerID(w, r)
	kv := s.kvFor(owner)
	out := map[string]modeStatsRes{}
	for _, mode := range []game.Mode{game.ModeDaily, game.ModeUnlimited} {
		rec := stats.Load(r.Context(), kv, mode)
		out[string(mode)] = modeStatsRes{Record: rec, Derived: rec.Derive()}
	}
	_ = json.NewEncoder(w).Encode(out)
}

// ----------------------------- persistence ---------------------------------

// persistDaily writes the session snapshot synchronously. Failures are
// logged and do not fail the request — the in-memory game stays usable.
func (s *Server) persistDaily(ctx context.Context, sess *session, now time.Time) {
	journal := daily.NewJournal(s.kvFor(sess.owner))
	if err := journal.SaveState(ctx, sess.g.Snapshot(sess.date)); err != nil {
		log.Warn().Err(err).Str("gameId", sess.g.ID).Msg("save daily state")
	}
}

// recordFinished folds a just-finished game into the owner's stats and,
// for daily mode, writes the completion record that locks the day.
// Runs exactly once per game: guarded by the GameOver edge at the caller.
func (s *Server) recordFinished(ctx context.Context, sess *session) {
	kv := s.kvFor(sess.owner)
	rec := stats.Load(ctx, kv, sess.g.Mode)
	rec.RecordGame(sess.g.Won, sess.g.History)
	if err := stats.Save(ctx, kv, sess.g.Mode, rec); err != nil {
		log.Warn().Err(err).Str("mode", string(sess.g.Mode)).Msg("save stats")
	}
	if sess.date != "" {
		journal := daily.NewJournal(kv)
		if err := journal.SaveCompletion(ctx, sess.date, sess.g.Won); err != nil {
			log.Warn().Err(err).Msg("save daily completion")
		}
	}
}

// writeEngineError maps engine errors to HTTP statuses: sequencing errors
// are 409 (wrong state, try later), validation errors are 400.
func writeEngineError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, game.ErrGameOver),
		errors.Is(err, game.ErrRevealActive),
		errors.Is(err, game.ErrRevealUsed),
		errors.Is(err, game.ErrDailyLocked):
		code = http.StatusConflict
	}
	http.Error(w, `{"error":"`+err.Error()+`"}`, code)
}
