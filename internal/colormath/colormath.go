// internal/colormath/colormath.go
//
// Pure color math for the Colorle game engine.
// Responsibilities:
//   - Hex ↔ RGB ↔ HSV conversions (24-bit space, lossless hex round trip).
//   - Per-digit closeness classification of a guess against the target.
//   - Euclidean RGB distance ("color error") used as the accuracy metric.
//   - Cryptographically random target color generation.
//
// Notes:
//   - The canonical color form is 6 uppercase hex digits, no leading '#'.
//   - Closeness is digit-wise: each of the 6 hex characters is classified
//     on its own numeric value, not per color channel.
package colormath

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"strings"
)

// HexLen is the length of a canonical color string.
const HexLen = 6

// MaxColorError is the largest possible Euclidean RGB distance,
// sqrt(3) * 255, between two 24-bit colors.
const MaxColorError = 441.67295593006370984949

// Validation errors reported by NormalizeHex. Both are recoverable:
// the caller rejects the input and mutates nothing.
var (
	ErrBadLength    = errors.New("color must be exactly 6 hex digits")
	ErrBadCharacter = errors.New("color may contain only 0-9 and A-F")
)

// Closeness represents the evaluation result for a single hex digit in a guess.
// Possible values:
//   - "correct": digit matches the target digit exactly.
//   - "close":   digit value is within 1 of the target digit value.
//   - "wrong":   digit value differs by more than 1.
type Closeness string

const (
	Correct Closeness = "correct"
	Close             = "close"
	Wrong             = "wrong"
)

// RGB is a 24-bit color as one byte per channel.
type RGB struct {
	R, G, B uint8
}

// HSV is a color in hue/saturation/value form.
// H is in degrees [0, 360); S and V are fractions [0, 1].
type HSV struct {
	H, S, V float64
}

// NormalizeHex validates a raw guess and returns the canonical uppercase form.
// Returns ErrBadLength or ErrBadCharacter for malformed input.
func NormalizeHex(raw string) (string, error) {
	if len(raw) != HexLen {
		return "", ErrBadLength
	}
	up := strings.ToUpper(raw)
	for i := 0; i < HexLen; i++ {
		if digitValue(up[i]) < 0 {
			return "", ErrBadCharacter
		}
	}
	return up, nil
}

// HexToRGB parses a canonical 6-digit hex color.
func HexToRGB(hex string) (RGB, error) {
	h, err := NormalizeHex(hex)
	if err != nil {
		return RGB{}, err
	}
	return RGB{
		R: uint8(digitValue(h[0])<<4 | digitValue(h[1])),
		G: uint8(digitValue(h[2])<<4 | digitValue(h[3])),
		B: uint8(digitValue(h[4])<<4 | digitValue(h[5])),
	}, nil
}

// RGBToHex formats a color in the canonical uppercase form.
func RGBToHex(c RGB) string {
	return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
}

// RGBToHSV converts to hue/saturation/value.
// Achromatic colors (max == min) have hue 0 and saturation 0.
func RGBToHSV(c RGB) HSV {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	diff := maxC - minC

	var h float64
	switch {
	case diff == 0:
		h = 0
	case maxC == r:
		h = 60 * math.Mod((g-b)/diff, 6)
	case maxC == g:
		h = 60 * ((b-r)/diff + 2)
	default:
		h = 60 * ((r-g)/diff + 4)
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if maxC > 0 {
		s = diff / maxC
	}
	return HSV{H: h, S: s, V: maxC}
}

// HSVToRGB converts back to RGB. Round trip with RGBToHSV is exact to
// within 1 per channel due to float rounding.
func HSVToRGB(c HSV) RGB {
	h := math.Mod(c.H, 360)
	if h < 0 {
		h += 360
	}
	chroma := c.V * c.S
	x := chroma * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := c.V - chroma

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = chroma, x, 0
	case h < 120:
		r, g, b = x, chroma, 0
	case h < 180:
		r, g, b = 0, chroma, x
	case h < 240:
		r, g, b = 0, x, chroma
	case h < 300:
		r, g, b = x, 0, chroma
	default:
		r, g, b = chroma, 0, x
	}
	return RGB{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
	}
}

// DigitCloseness classifies one hex digit of a guess against the target digit.
// Inputs must be valid hex digit characters (validated upstream).
func DigitCloseness(a, b byte) Closeness {
	if a == b {
		return Correct
	}
	d := digitValue(a) - digitValue(b)
	if d == 1 || d == -1 {
		return Close
	}
	return Wrong
}

// ScoreGuess classifies all 6 digit positions of a normalized guess
// against a normalized target.
func ScoreGuess(guess, target string) []Closeness {
	out := make([]Closeness, HexLen)
	for i := 0; i < HexLen; i++ {
		out[i] = DigitCloseness(guess[i], target[i])
	}
	return out
}

// ColorError is the Euclidean distance between two colors as 3-dimensional
// RGB vectors. Range [0, MaxColorError].
func ColorError(a, b RGB) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// HexColorError parses both colors and returns their color error.
func HexColorError(guess, target string) (float64, error) {
	g, err := HexToRGB(guess)
	if err != nil {
		return 0, err
	}
	t, err := HexToRGB(target)
	if err != nil {
		return 0, err
	}
	return ColorError(g, t), nil
}

// RandomColor returns a uniformly random 24-bit color in canonical form.
// Uses crypto/rand; entropy failure is vanishingly unlikely and falls
// back to black.
func RandomColor() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return RGBToHex(RGB{R: b[0], G: b[1], B: b[2]})
}

// digitValue maps a hex digit character to 0..15, or -1 if invalid.
func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return -1
}
