package canon

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidVIN = errors.New("invalid vin")

var (
	reVINNoise = regexp.MustCompile(`[\s\-]`)
	reSlugSep  = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeVIN upper-cases a VIN and strips whitespace and hyphens.
func NormalizeVIN(vin string) string {
	return strings.ToUpper(reVINNoise.ReplaceAllString(vin, ""))
}

// ValidateVIN checks length and alphabet of a normalized VIN. I, O and Q are
// never used in VINs.
func ValidateVIN(vin string) error {
	if len(vin) != 17 {
		return fmt.Errorf("%w: expected 17 characters, got %d", ErrInvalidVIN, len(vin))
	}
	for i := 0; i < len(vin); i++ {
		c := vin[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z' && c != 'I' && c != 'O' && c != 'Q':
		default:
			return fmt.Errorf("%w: character %q at position %d", ErrInvalidVIN, c, i+1)
		}
	}
	return nil
}

var vinWeights = [17]int{8, 7, 6, 5, 4, 3, 2, 10, 0, 9, 8, 7, 6, 5, 4, 3, 2}

func vinValue(c byte) int {
	if c >= '0' && c <= '9' {
		return int(c - '0')
	}
	switch c {
	case 'A', 'J':
		return 1
	case 'B', 'K', 'S':
		return 2
	case 'C', 'L', 'T':
		return 3
	case 'D', 'M', 'U':
		return 4
	case 'E', 'N', 'V':
		return 5
	case 'F', 'W':
		return 6
	case 'G', 'P', 'X':
		return 7
	case 'H', 'Y':
		return 8
	case 'R', 'Z':
		return 9
	}
	return 0
}

// CheckDigitValid reports whether position 9 holds the North American check
// digit. Imports built for other markets often fail this, so callers treat it
// as advisory.
func CheckDigitValid(vin string) bool {
	if ValidateVIN(vin) != nil {
		return false
	}
	sum := 0
	for i := 0; i < 17; i++ {
		sum += vinValue(vin[i]) * vinWeights[i]
	}
	want := byte('0' + sum%11)
	if sum%11 == 10 {
		want = 'X'
	}
	return vin[8] == want
}

// NormalizeStockNumber trims, upper-cases and collapses inner whitespace.
func NormalizeStockNumber(s string) string {
	return collapseSpaces(strings.ToUpper(strings.TrimSpace(s)))
}

// Slug turns a store name into a lowercase, hyphen separated identifier.
func Slug(name string) string {
	s := reSlugSep.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(s, "-")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
