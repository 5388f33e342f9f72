package httpserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/colorle/go-server/internal/colormath"
	"github.com/colorle/go-server/internal/daily"
	"github.com/colorle/go-server/internal/game"
	"github.com/colorle/go-server/internal/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	schema := `
    CREATE TABLE users (
        id TEXT PRIMARY KEY,
        username TEXT NOT NULL UNIQUE COLLATE NOCASE,
        password_hash TEXT NOT NULL,
        created_at TEXT NOT NULL
    );
    CREATE TABLE kv (
        owner TEXT NOT NULL,
        key TEXT NOT NULL,
        value TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        PRIMARY KEY (owner, key)
    );`
	if _, err := db.Exec(schema); err != nil {
		t.Fatal(err)
	}
	return db
}

// testClient wraps an httptest server with a cookie jar so the anonymous
// owner cookie persists across calls, like a browser session.
type testClient struct {
	t   *testing.T
	srv *httptest.Server
	c   *http.Client
}

func newTestClient(t *testing.T, s *Server) *testClient {
	t.Helper()
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	jar, _ := cookiejar.New(nil)
	return &testClient{t: t, srv: srv, c: &http.Client{Jar: jar}}
}

func (tc *testClient) post(path string, body any, out any) int {
	tc.t.Helper()
	raw, _ := json.Marshal(body)
	res, err := tc.c.Post(tc.srv.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		tc.t.Fatal(err)
	}
	defer res.Body.Close()
	if out != nil {
		_ = json.NewDecoder(res.Body).Decode(out)
	}
	return res.StatusCode
}

// anonID returns the anonymous owner cookie the server set for this client.
func (tc *testClient) anonID() string {
	tc.t.Helper()
	u, _ := url.Parse(tc.srv.URL)
	for _, c := range tc.c.Jar.Cookies(u) {
		if c.Name == anonCookieName {
			return c.Value
		}
	}
	tc.t.Fatal("anon cookie not set")
	return ""
}

func (tc *testClient) get(path string, out any) int {
	tc.t.Helper()
	res, err := tc.c.Get(tc.srv.URL + path)
	if err != nil {
		tc.t.Fatal(err)
	}
	defer res.Body.Close()
	if out != nil {
		_ = json.NewDecoder(res.Body).Decode(out)
	}
	return res.StatusCode
}

// ------------------------------ daily color --------------------------------

func TestDailyColorEndpoint(t *testing.T) {
	t.Setenv("DAILY_SECRET", "test_secret")
	s := New(openTestDB(t))

	req := httptest.NewRequest(http.MethodGet, "/api/daily-color", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body dailyColorRes
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	want := daily.Color([]byte("test_secret"), time.Now().UTC())
	if body.Hex != want {
		t.Errorf("hex = %q, want %q", body.Hex, want)
	}

	cc := rec.Header().Get("Cache-Control")
	if !strings.HasPrefix(cc, "public, max-age=") || !strings.Contains(cc, "s-maxage=") {
		t.Errorf("Cache-Control = %q", cc)
	}
	var maxAge int
	if _, err := fmt.Sscanf(cc, "public, max-age=%d,", &maxAge); err != nil {
		t.Fatalf("parse Cache-Control %q: %v", cc, err)
	}
	if maxAge < 1 || maxAge > 24*3600 {
		t.Errorf("max-age = %d", maxAge)
	}
}

func TestDailyColorRejectsNavigation(t *testing.T) {
	t.Setenv("DAILY_SECRET", "test_secret")
	s := New(openTestDB(t))

	for _, set := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("Sec-Fetch-Mode", "navigate") },
		func(r *http.Request) { r.Header.Set("Sec-Fetch-Dest", "document") },
		func(r *http.Request) {
			r.Header.Set("Accept", "text/html,application/xhtml+xml")
		},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/daily-color", nil)
		set(req)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("navigation request got %d, want 404", rec.Code)
		}
	}
}

func TestDailyColorMissingSecret(t *testing.T) {
	t.Setenv("DAILY_SECRET", "")
	s := New(openTestDB(t))
	req := httptest.NewRequest(http.MethodGet, "/api/daily-color", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// ------------------------------ game flow ----------------------------------

func TestUnlimitedGameFlow(t *testing.T) {
	t.Setenv("DAILY_SECRET", "test_secret")
	s := New(openTestDB(t))
	tc := newTestClient(t, s)

	var created newGameRes
	if code := tc.post("/game/new", map[string]string{"mode": "unlimited"}, &created); code != 200 {
		t.Fatalf("new game status = %d", code)
	}
	if created.GameID == "" || created.Status.Attempt != 1 {
		t.Fatalf("created = %+v", created)
	}

	// Malformed guesses are rejected without advancing the attempt.
	var errBody map[string]string
	if code := tc.post("/game/guess", guessReq{GameID: created.GameID, Guess: "zzz"}, &errBody); code != 400 {
		t.Fatalf("bad guess status = %d", code)
	}

	// Find the target through the live session and win.
	sess := s.findSessionByID(created.GameID)
	if sess == nil {
		t.Fatal("session missing")
	}
	target := sess.g.Target

	var gr guessRes
	if code := tc.post("/game/guess", guessReq{GameID: created.GameID, Guess: target}, &gr); code != 200 {
		t.Fatalf("guess status = %d", code)
	}
	if gr.State != "won" || gr.ColorError != 0 || gr.Target != target {
		t.Errorf("guess result = %+v", gr)
	}
	for i, m := range gr.Marks {
		if m != colormath.Correct {
			t.Errorf("mark %d = %v", i, m)
		}
	}

	// Stats recorded the win for unlimited mode only.
	var st map[string]modeStatsRes
	if code := tc.get("/stats", &st); code != 200 {
		t.Fatalf("stats status = %d", code)
	}
	if st["unlimited"].Record.GamesWon != 1 || st["unlimited"].Record.CurrentStreak != 1 {
		t.Errorf("unlimited stats = %+v", st["unlimited"].Record)
	}
	if st["daily"].Record.GamesPlayed != 0 {
		t.Errorf("daily stats = %+v", st["daily"].Record)
	}

	// Restart always works in unlimited mode.
	var rr restartRes
	if code := tc.post("/game/restart", restartReq{GameID: created.GameID}, &rr); code != 200 {
		t.Fatalf("restart status = %d", code)
	}
	if rr.State != "playing" || rr.Status.Attempt != 1 {
		t.Errorf("restart = %+v", rr)
	}
}

func TestRevealEndpoint(t *testing.T) {
	t.Setenv("DAILY_SECRET", "test_secret")
	s := New(openTestDB(t))
	tc := newTestClient(t, s)

	var created newGameRes
	tc.post("/game/new", map[string]string{"mode": "unlimited"}, &created)

	var rv revealRes
	if code := tc.post("/game/reveal", revealReq{GameID: created.GameID}, &rv); code != 200 {
		t.Fatalf("reveal status = %d", code)
	}
	if rv.DurationMs != 1000 || rv.Target == "" {
		t.Errorf("reveal = %+v", rv)
	}

	// While the reveal shows, guesses and further reveals are sequenced out.
	if code := tc.post("/game/guess", guessReq{GameID: created.GameID, Guess: "000000"}, nil); code != 409 {
		t.Errorf("guess during reveal status = %d, want 409", code)
	}
	if code := tc.post("/game/reveal", revealReq{GameID: created.GameID}, nil); code != 409 {
		t.Errorf("second reveal status = %d, want 409", code)
	}
}

func TestDailyGameLifecycle(t *testing.T) {
	t.Setenv("DAILY_SECRET", "test_secret")
	s := New(openTestDB(t))
	tc := newTestClient(t, s)

	var created newGameRes
	if code := tc.post("/game/new", map[string]string{"mode": "daily"}, &created); code != 200 {
		t.Fatalf("new daily status = %d", code)
	}
	want := daily.Color([]byte("test_secret"), time.Now().UTC())
	sess := s.findSessionByID(created.GameID)
	if sess == nil || sess.g.Target != want {
		t.Fatalf("daily target = %q, want %q", sess.g.Target, want)
	}

	// One wrong guess, then reconnect: the same session resumes with history.
	tc.post("/game/guess", guessReq{GameID: created.GameID, Guess: "000000"}, nil)
	var resumed newGameRes
	tc.post("/game/new", map[string]string{"mode": "daily"}, &resumed)
	if resumed.GameID != created.GameID || len(resumed.Rows) != 1 || resumed.Status.Attempt != 2 {
		t.Fatalf("resumed = %+v", resumed)
	}

	// Win, then the day is locked: restart 409, new daily 409.
	var gr guessRes
	tc.post("/game/guess", guessReq{GameID: created.GameID, Guess: want}, &gr)
	if gr.State != "won" {
		t.Fatalf("state = %q", gr.State)
	}
	if code := tc.post("/game/restart", restartReq{GameID: created.GameID}, nil); code != 409 {
		t.Errorf("daily restart status = %d, want 409", code)
	}
	var lock map[string]any
	if code := tc.post("/game/new", map[string]string{"mode": "daily"}, &lock); code != 409 {
		t.Errorf("new daily after completion status = %d, want 409", code)
	}
	if lock["error"] != "already_played" || lock["won"] != true {
		t.Errorf("lock body = %+v", lock)
	}

	var st map[string]modeStatsRes
	tc.get("/stats", &st)
	if st["daily"].Record.GamesWon != 1 || st["daily"].Record.TotalGuesses != 2 {
		t.Errorf("daily stats = %+v", st["daily"].Record)
	}
}

func TestDailyTerminalSnapshotLocksDay(t *testing.T) {
	t.Setenv("DAILY_SECRET", "test_secret")
	db := openTestDB(t)
	s := New(db)
	tc := newTestClient(t, s)

	// First request just establishes the anonymous owner cookie.
	tc.get("/stats", nil)
	owner := tc.anonID()

	// A finished game's snapshot landed but the completion record did not
	// (crash window): the day must still read as spent.
	now := time.Now().UTC()
	today := daily.DateKey(now)
	g := game.New(game.ModeDaily, daily.Color([]byte("test_secret"), now))
	_, _, _ = g.SubmitGuess(g.Target, now)
	journal := daily.NewJournal(store.ForOwner(db, owner))
	if err := journal.SaveState(context.Background(), g.Snapshot(today)); err != nil {
		t.Fatal(err)
	}

	var lock map[string]any
	if code := tc.post("/game/new", map[string]string{"mode": "daily"}, &lock); code != 409 {
		t.Fatalf("new daily status = %d, want 409", code)
	}
	if lock["error"] != "already_played" || lock["won"] != true {
		t.Errorf("lock body = %+v", lock)
	}

	// The completion record was repaired from the snapshot.
	completed, won, err := journal.LoadCompletion(context.Background(), today)
	if err != nil || !completed || !won {
		t.Errorf("completion = %v, %v, %v", completed, won, err)
	}
}

func TestSweepStaleSessions(t *testing.T) {
	t.Setenv("DAILY_SECRET", "test_secret")
	s := New(openTestDB(t))
	tc := newTestClient(t, s)

	// Plant a prior-date daily session and a long-idle unlimited one.
	staleDaily := game.New(game.ModeDaily, "112233")
	idle := game.New(game.ModeUnlimited, "")
	s.mu.Lock()
	s.sessions[staleDaily.ID] = &session{
		g: staleDaily, owner: "x", date: "2020-01-01",
		touched: time.Now().Add(-48 * time.Hour),
	}
	s.dailyIdx["x|2020-01-01"] = staleDaily.ID
	s.sessions[idle.ID] = &session{
		g: idle, owner: "x", touched: time.Now().Add(-48 * time.Hour),
	}
	s.mu.Unlock()

	// Any new game sweeps the tables.
	var created newGameRes
	if code := tc.post("/game/new", map[string]string{"mode": "unlimited"}, &created); code != 200 {
		t.Fatalf("new game status = %d", code)
	}
	if s.findSessionByID(staleDaily.ID) != nil {
		t.Error("prior-date daily session survived sweep")
	}
	if s.findSessionByID(idle.ID) != nil {
		t.Error("idle session survived sweep")
	}
	s.mu.Lock()
	_, idxAlive := s.dailyIdx["x|2020-01-01"]
	s.mu.Unlock()
	if idxAlive {
		t.Error("stale daily index entry survived sweep")
	}
	// The session just created is untouched by the sweep.
	if s.findSessionByID(created.GameID) == nil {
		t.Error("fresh session evicted")
	}
}

func TestGuessUnknownSession(t *testing.T) {
	t.Setenv("DAILY_SECRET", "test_secret")
	s := New(openTestDB(t))
	tc := newTestClient(t, s)
	if code := tc.post("/game/guess", guessReq{GameID: "nope", Guess: "000000"}, nil); code != 404 {
		t.Errorf("status = %d, want 404", code)
	}
}

// ------------------------------ auth ---------------------------------------

func TestSignupLoginMe(t *testing.T) {
	t.Setenv("DAILY_SECRET", "test_secret")
	t.Setenv("JWT_SECRET", "jwt_test_secret")
	s := New(openTestDB(t))
	tc := newTestClient(t, s)

	if code := tc.post("/auth/signup", map[string]string{"username": "player_1", "password": "longenough"}, nil); code != 200 {
		t.Fatalf("signup status = %d", code)
	}
	var me authUser
	if code := tc.get("/auth/me", &me); code != 200 {
		t.Fatalf("me status = %d", code)
	}
	if me.Username != "player_1" {
		t.Errorf("me = %+v", me)
	}

	// Duplicate username conflicts.
	if code := tc.post("/auth/signup", map[string]string{"username": "player_1", "password": "longenough"}, nil); code != 409 {
		t.Errorf("dup signup status = %d", code)
	}

	tc.post("/auth/logout", nil, nil)
	if code := tc.get("/auth/me", nil); code != 401 {
		t.Errorf("me after logout status = %d", code)
	}

	if code := tc.post("/auth/login", map[string]string{"username": "player_1", "password": "wrongwrong"}, nil); code != 401 {
		t.Errorf("bad login status = %d", code)
	}
	if code := tc.post("/auth/login", map[string]string{"username": "player_1", "password": "longenough"}, nil); code != 200 {
		t.Errorf("login status = %d", code)
	}
}

func TestSignupClaimsAnonStats(t *testing.T) {
	t.Setenv("DAILY_SECRET", "test_secret")
	t.Setenv("JWT_SECRET", "jwt_test_secret")
	s := New(openTestDB(t))
	tc := newTestClient(t, s)

	// Win one unlimited game as a guest.
	var created newGameRes
	tc.post("/game/new", map[string]string{"mode": "unlimited"}, &created)
	sess := s.findSessionByID(created.GameID)
	tc.post("/game/guess", guessReq{GameID: created.GameID, Guess: sess.g.Target}, nil)

	// Sign up: the anonymous stats follow the account.
	tc.post("/auth/signup", map[string]string{"username": "migrator", "password": "longenough"}, nil)
	var st map[string]modeStatsRes
	tc.get("/stats", &st)
	if st["unlimited"].Record.GamesWon != 1 {
		t.Errorf("claimed stats = %+v", st["unlimited"].Record)
	}
}

// findSessionByID is a test helper reaching into the session table.
func (s *Server) findSessionByID(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}
