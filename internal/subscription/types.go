package subscription

import "strings"

// MinIntervalHours is the lower clamp applied by SetInterval. The upper
// bound is enforced by the command layer.
const MinIntervalHours = 1

// User is a read-only copy of one user's state.
type User struct {
	ID            string
	Symbols       []string
	IntervalHours int
}

// Defaults is the process-wide seed for new users.
type Defaults struct {
	Symbols       []string
	IntervalHours int
}

func (d Defaults) clone() Defaults {
	return Defaults{Symbols: append([]string(nil), d.Symbols...), IntervalHours: d.IntervalHours}
}

// NormalizeSymbol trims and uppercases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// normalizeList uppercases, drops blanks and removes duplicates, keeping first occurrence.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
