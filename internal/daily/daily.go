package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"time"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Color returns the deterministic target color for a date:
// the first 3 bytes of HMAC-SHA256(secret, YYYY-MM-DD) as R, G, B,
// formatted as 6 uppercase hex digits. Same secret + same UTC date give
// every caller the byte-identical color with no coordination; the value
// rolls exactly at UTC midnight.
func Color(secret []byte, t time.Time) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(DateKey(t)))
	sum := h.Sum(nil)
	return fmt.Sprintf("%02X%02X%02X", sum[0], sum[1], sum[2])
}

// SecondsUntilMidnight returns the cache lifetime for the daily color:
// whole seconds remaining until the next UTC midnight, never below 1, so
// intermediate caches expire the value at the date boundary.
func SecondsUntilMidnight(t time.Time) int {
	u := t.UTC()
	next := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	s := int(next.Sub(u).Seconds())
	if s < 1 {
		s = 1
	}
	return s
}
