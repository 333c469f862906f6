package result

import "github.com/antzucaro/matchr"

// Discrepancy returns the percentage difference between two texts:
// Levenshtein edit distance divided by the longer text's length, times 100.
//
// The distance is computed over runes (matchr operates on runes), so
// multi-byte scripts score the same as ASCII. The measure is symmetric and
// Discrepancy(x, x) == 0.
func Discrepancy(a, b string) float64 {
	if a == b {
		return 0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	dist := matchr.Levenshtein(a, b)
	return float64(dist) / float64(longest) * 100
}
