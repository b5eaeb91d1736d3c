package suggest

import (
	"sort"
	"strings"

	"github.com/google/shlex"
)

// Score computes a fuzzy similarity between two command lines on a 0-100
// scale. It is case-insensitive and ignores token order: the best of the
// plain edit-distance ratio and the token-set ratios is returned, so
// "status git" still scores high against "git status".
func Score(a, b string) int {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	best := ratio(a, b)

	ta, tb := tokenize(a), tokenize(b)
	if s := tokenSetRatio(ta, tb); s > best {
		best = s
	}
	return best
}

// tokenize splits a command line into tokens, falling back to whitespace
// splitting when the line has unbalanced quotes.
func tokenize(s string) []string {
	tokens, err := shlex.Split(s)
	if err != nil || len(tokens) == 0 {
		tokens = strings.Fields(s)
	}
	return tokens
}

// tokenSetRatio compares the sorted token intersection against each side's
// sorted remainder, the classic token-set similarity.
func tokenSetRatio(a, b []string) int {
	setA := toSet(a)
	setB := toSet(b)

	var common, onlyA, onlyB []string
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if _, ok := setA[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	s1 := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	s2 := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := ratio(s1, s2)
	if base != "" {
		if s := ratio(base, s1); s > best {
			best = s
		}
		if s := ratio(base, s2); s > best {
			best = s
		}
	}
	return best
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// ratio is the normalized edit-distance similarity: 100 * (1 - d/maxlen).
func ratio(a, b string) int {
	if a == b {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 100
	}
	d := levenshtein(a, b)
	return int(100 * (1 - float64(d)/float64(longest)))
}

// levenshtein computes edit distance with a two-row rolling buffer.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
