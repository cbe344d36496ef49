package fsm

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxInputRunes caps free-text fields after normalization.
const MaxInputRunes = 256

// DefaultMaxQuantity is the upper bound used when none is configured.
const DefaultMaxQuantity = 100

var (
	// ErrNoNumber is returned when the text holds no number.
	ErrNoNumber = errors.New("fsm: no number in input")
	// ErrNotPositive is returned for zero or negative quantities.
	ErrNotPositive = errors.New("fsm: quantity must be positive")
	// ErrTooLarge is returned for quantities above the limit.
	ErrTooLarge = errors.New("fsm: quantity above limit")
	// ErrBadPhone is returned for phones outside the accepted grammar.
	ErrBadPhone = errors.New("fsm: invalid phone number")
)

var (
	quantityRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
	phoneRe    = regexp.MustCompile(`^(\+38|38)?0\d{9}$`)
	phoneStrip = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// CleanText NFC-normalizes s, trims it and truncates it to MaxInputRunes.
func CleanText(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	if utf8.RuneCountInString(s) <= MaxInputRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:MaxInputRunes]))
}

// ParseQuantity extracts the first decimal number from text. Both "." and ","
// are accepted as separators and spaces are ignored, so "2 3" reads as 23.
// Exponents are not parsed: "1e3" is 1. The result must be in (0, max].
func ParseQuantity(text string, max float64) (float64, error) {
	if max <= 0 {
		max = DefaultMaxQuantity
	}
	compact := strings.ReplaceAll(strings.TrimSpace(text), " ", "")
	loc := quantityRe.FindStringIndex(compact)
	if loc == nil {
		return 0, ErrNoNumber
	}
	if loc[0] > 0 && compact[loc[0]-1] == '-' {
		return 0, ErrNotPositive
	}
	q, err := strconv.ParseFloat(strings.Replace(compact[loc[0]:loc[1]], ",", ".", 1), 64)
	if err != nil {
		return 0, ErrNoNumber
	}
	switch {
	case q <= 0:
		return 0, ErrNotPositive
	case q > max:
		return 0, ErrTooLarge
	}
	return q, nil
}

// NormalizePhone accepts +380XXXXXXXXX, 380XXXXXXXXX or 0XXXXXXXXX with
// optional spaces, dashes and parentheses and returns the +380XXXXXXXXX form.
func NormalizePhone(text string) (string, error) {
	p := phoneStrip.Replace(strings.TrimSpace(text))
	if !phoneRe.MatchString(p) {
		return "", ErrBadPhone
	}
	// The last ten characters are always 0XXXXXXXXX.
	return "+38" + p[len(p)-10:], nil
}
