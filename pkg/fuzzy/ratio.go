// Package fuzzy implements token-order-insensitive string similarity on a 0-100 scale.
package fuzzy

import (
	"sort"
	"strings"
)

// Ratio returns the normalized InDel similarity of a and b:
// 100 * 2 * LCS(a, b) / (len(a) + len(b)), measured in runes.
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	return 100 * float64(2*lcsLength(ra, rb)) / float64(total)
}

// TokenSortRatio sorts the whitespace-separated tokens of both strings,
// rejoins them with single spaces and returns their Ratio. Comparison is
// case-sensitive and punctuation is kept.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortTokens(a), sortTokens(b))
}

// Scorer adapts TokenSortRatio to a method value
type Scorer struct{}

// Similarity returns TokenSortRatio(a, b)
func (Scorer) Similarity(a, b string) float64 {
	return TokenSortRatio(a, b)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// lcsLength is the longest common subsequence length using two rolling rows
func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for _, ca := range a {
		for j, cb := range b {
			switch {
			case ca == cb:
				cur[j+1] = prev[j] + 1
			case prev[j+1] >= cur[j]:
				cur[j+1] = prev[j+1]
			default:
				cur[j+1] = cur[j]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
