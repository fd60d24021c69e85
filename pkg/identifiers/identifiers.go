// Package identifiers normalizes free-text student identifier lists typed by administrators.
package identifiers

import (
	"strings"
	"unicode"
)

// Set holds normalized identifiers in first-seen order.
type Set struct {
	Emails  []string
	RollNos []string
}

// Len returns the number of distinct identifiers.
func (s Set) Len() int {
	return len(s.Emails) + len(s.RollNos)
}

// Parse splits emails and roll numbers supplied as separate fields. Tokens containing '@' are
// treated as emails wherever they appear, so a pasted mixed list still classifies correctly.
func Parse(emails, rollNos string) Set {
	var set Set
	seenEmail := map[string]struct{}{}
	seenRoll := map[string]struct{}{}
	for _, raw := range []string{emails, rollNos} {
		for _, token := range split(raw) {
			if strings.Contains(token, "@") {
				email := strings.ToLower(token)
				if _, ok := seenEmail[email]; ok {
					continue
				}
				seenEmail[email] = struct{}{}
				set.Emails = append(set.Emails, email)
				continue
			}
			roll := strings.ToUpper(token)
			if _, ok := seenRoll[roll]; ok {
				continue
			}
			seenRoll[roll] = struct{}{}
			set.RollNos = append(set.RollNos, roll)
		}
	}
	return set
}

func split(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	out := fields[:0]
	for _, field := range fields {
		field = strings.Trim(field, `"'`)
		if field != "" {
			out = append(out, field)
		}
	}
	return out
}
