package cmd

import (
	"strings"

	"github.com/acto-dev/ajax/internal/resolve"
)

// maxSuggestDistance is the largest edit distance still offered as a typo fix.
const maxSuggestDistance = 3

// levenshtein computes the Levenshtein edit distance between two strings.
func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	row := make([]int, lb+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= la; i++ {
		prev := i - 1
		row[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			val := min(row[j]+1, row[j-1]+1, prev+cost)
			prev = row[j]
			row[j] = val
		}
	}
	return row[lb]
}

// closestName returns the candidate nearest to input: the smallest edit
// distance within maxSuggestDistance, else the unambiguous fuzzy match for
// abbreviations such as "prof".
func closestName(input string, candidates []string, key func(string) string) string {
	best, bestDist := "", maxSuggestDistance+1
	keys := make([]string, len(candidates))
	for i, c := range candidates {
		keys[i] = strings.ToLower(key(c))
		if d := levenshtein(input, keys[i]); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best != "" {
		return best
	}
	match, err := resolve.Closest(input, keys)
	if err != nil {
		return ""
	}
	for i, k := range keys {
		if k == match {
			return candidates[i]
		}
	}
	return ""
}

// suggestCommand finds the closest command name to the unknown input.
func suggestCommand(unknown string, commands []string) string {
	return closestName(strings.ToLower(unknown), commands, func(s string) string { return s })
}

// suggestFlag finds the closest flag name to the unknown input.
// Dashes are ignored when comparing but kept in the returned name.
func suggestFlag(unknown string, flags []string) string {
	stripped := strings.ToLower(strings.TrimLeft(unknown, "-"))
	if stripped == "" {
		return ""
	}
	return closestName(stripped, flags, func(f string) string { return strings.TrimLeft(f, "-") })
}
