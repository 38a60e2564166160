package resolver

import (
	"errors"
	"strings"
)

// ErrInvalidPhone is returned when a phone number doesn't fit the
// configured country's length rule after normalization.
var ErrInvalidPhone = errors.New("resolver: phone does not match country rule")

// CountryRule describes how to turn a national-form number into E.164 and
// what length an international-form number must have to be accepted.
type CountryRule struct {
	CountryCode    string // e.g. "254"
	NationalLength int    // digit count after stripping the leading 0
}

// NormalizePhone keeps the leading '+' and digits, and maps a leading-0
// national number to international form per rule. Numbers that don't
// match the configured country's length are rejected rather than guessed
// at — a silently-wrong phone match is worse than no match.
func NormalizePhone(raw string, rule CountryRule) (string, error) {
	var digits strings.Builder
	hadPlus := strings.HasPrefix(strings.TrimSpace(raw), "+")
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case hadPlus:
		if len(d) != len(rule.CountryCode)+rule.NationalLength {
			return "", ErrInvalidPhone
		}
		return "+" + d, nil
	case strings.HasPrefix(d, "0"):
		national := d[1:]
		if len(national) != rule.NationalLength {
			return "", ErrInvalidPhone
		}
		return "+" + rule.CountryCode + national, nil
	case len(d) == rule.NationalLength:
		return "+" + rule.CountryCode + d, nil
	default:
		return "", ErrInvalidPhone
	}
}
