package email

import (
	"strings"
	"unicode"
)

// DisplayName guesses a human name from the local part of an address,
// e.g. "ana.perez+gifts@example.com" becomes "Ana Perez". Tags after '+'
// and digits are ignored. Returns "" when nothing usable remains.
func DisplayName(address string) string {
	local := strings.TrimSpace(address)
	if at := strings.LastIndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || unicode.IsDigit(r)
	})
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		words = append(words, capitalize(strings.ToLower(p)))
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
