package signing

import (
	"fmt"
	"strings"
)

const fullyMasked = "***.***.***-**"

// MaskNationalID hides all but the middle six digits of a Brazilian CPF,
// e.g. "123.456.789-09" becomes "***.456.789-**". Identifiers with fewer
// than nine digits are fully masked.
func MaskNationalID(id string) string {
	digits := DigitsOnly(id)
	if len(digits) < 9 {
		return fullyMasked
	}
	return fmt.Sprintf("***.%s.%s-**", digits[3:6], digits[6:9])
}

// DigitsOnly strips every non-digit rune from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
