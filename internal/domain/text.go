package domain

// Truncate bounds s to max runes, marking the cut with an ellipsis. Long
// input is always shortened, never rejected.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}
