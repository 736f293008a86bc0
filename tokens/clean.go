package tokens

import "strings"

// Clean trims whitespace and one pair of surrounding double quotes, which some
// clients leave on tokens copied out of JSON responses.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
