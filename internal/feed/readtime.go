package feed

import "strings"

// Estimate returns the estimated minutes to read text at the given pace.
// Empty text or a non-positive pace yields 0.
func Estimate(text string, wordsPerMinute int) float64 {
	if wordsPerMinute <= 0 {
		return 0
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return float64(words) / float64(wordsPerMinute)
}
