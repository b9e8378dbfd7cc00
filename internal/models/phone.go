package models

import (
	"errors"
	"strings"
)

// ErrInvalidPhone is returned for numbers outside the Ghana mobile plan
var ErrInvalidPhone = errors.New("invalid Ghana phone number format")

// ghanaNetworkPrefixes are the local mobile prefixes accepted at checkout.
var ghanaNetworkPrefixes = []string{
	"020", "024", "026", "027", "028",
	"050", "054", "055", "056", "057", "059",
}

// NormalizeGhanaPhone returns the +233 form of a local, 233-prefixed or
// +233-prefixed mobile number. Spaces, dashes and brackets are ignored.
func NormalizeGhanaPhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	var national string
	switch {
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		national = digits
	case len(digits) == 12 && strings.HasPrefix(digits, "233"):
		national = "0" + digits[3:]
	default:
		return "", ErrInvalidPhone
	}

	for _, prefix := range ghanaNetworkPrefixes {
		if strings.HasPrefix(national, prefix) {
			return "+233" + national[1:], nil
		}
	}
	return "", ErrInvalidPhone
}
