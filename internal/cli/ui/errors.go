package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// maxSuggestDistance is the largest edit distance offered as a suggestion
const maxSuggestDistance = 3

// UnknownEntityError writes an error for an entity key missing from the
// registry, suggesting the closest known keys
func UnknownEntityError(w io.Writer, key string, known []string, noColor bool) {
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if noColor {
		red.DisableColor()
		yellow.DisableColor()
		cyan.DisableColor()
	}

	red.Fprintf(w, "✗ UNKNOWN ENTITY: %s\n", key)
	if s := Suggest(key, known); len(s) > 0 {
		yellow.Fprintf(w, "\n   Did you mean: %s?\n", strings.Join(s, ", "))
	}
	cyan.Fprintln(w, "\n   → See all entities: fixhub entities")
}

// Success writes a green check line
func Success(w io.Writer, message string, noColor bool) {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	green.Fprintln(w, "✓ "+message)
}

// Errorf writes a red error line
func Errorf(w io.Writer, noColor bool, format string, args ...interface{}) {
	red := color.New(color.FgRed, color.Bold)
	if noColor {
		red.DisableColor()
	}
	red.Fprintf(w, "Error: %s\n", fmt.Sprintf(format, args...))
}

// Suggest returns up to three candidates within edit distance 3 of target,
// closest first. Matching ignores case.
func Suggest(target string, candidates []string) []string {
	type match struct {
		value    string
		distance int
	}

	var matches []match
	for _, c := range candidates {
		if d := levenshtein(strings.ToLower(target), strings.ToLower(c)); d <= maxSuggestDistance {
			matches = append(matches, match{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].distance < matches[j].distance })

	out := make([]string, 0, 3)
	for i := 0; i < len(matches) && i < 3; i++ {
		out = append(out, matches[i].value)
	}
	return out
}

// levenshtein returns the edit distance between a and b
func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
