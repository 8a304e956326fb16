package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanCedula trims `s` and drops the separators of a formatted cedula, keeping digits only.
func CleanCedula(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r != '-' && r != ' ' {
			// keep unknown characters so that validation can reject them
			b.WriteRune(r)
		}
	}
	return b.String()
}
