// internal/httpserver/routes_daily.go
//
// GET /api/daily-color — the daily color protocol endpoint.
//   - Derives the day's target from DAILY_SECRET via the daily package.
//   - Responds only to fetch-shaped requests: a page navigation (address
//     bar, link click) gets a 404 to deter casual inspection. Obfuscation,
//     not security — the value is still reachable by anyone who asks right.
//   - Cache-Control max-age runs out exactly at the next UTC midnight, so
//     intermediate caches roll the color with the date.

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/colorle/go-server/internal/daily"
)

// dailyColorRes is the body of GET /api/daily-color.
type dailyColorRes struct {
	Hex string `json:"hex"`
}

// handleDailyColor serves the deterministic color of the current UTC day.
func (s *Server) handleDailyColor(w http.ResponseWriter, r *http.Request) {
	if isNavigation(r) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
		return
	}
	if len(s.dailySecret) == 0 {
		log.Error().Msg("DAILY_SECRET not configured")
		http.Error(w, `{"error":"secret_not_configured"}`, http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	maxAge := strconv.Itoa(daily.SecondsUntilMidnight(now))
	w.Header().Set("Cache-Control", "public, max-age="+maxAge+", s-maxage="+maxAge)
	_ = json.NewEncoder(w).Encode(dailyColorRes{Hex: daily.Color(s.dailySecret, now)})
}

// isNavigation reports whether the request looks like a direct browser
// navigation rather than a fetch: Sec-Fetch-Mode: navigate,
// Sec-Fetch-Dest: document, or an Accept header asking for HTML.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	if r.Header.Get("Sec-Fetch-Dest") == "document" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
