package devserver

import (
	"strings"
	"unicode/utf8"
)

type GuessClass int

const (
	GuessMiss GuessClass = iota
	GuessClose
	GuessCorrect
)

// Classifier decides whether a guess is correct, close, or a miss. The
// near-miss algorithm is not part of the published client contract, so it is
// pluggable; clients only display what the server broadcasts.
type Classifier interface {
	Classify(guess, word string) GuessClass
}

// LevenshteinClassifier is the default: exact match after trimming and case
// folding is correct; within a length-scaled edit distance is close.
type LevenshteinClassifier struct{}

func (LevenshteinClassifier) Classify(guess, word string) GuessClass {
	g := strings.ToLower(strings.TrimSpace(guess))
	w := strings.ToLower(strings.TrimSpace(word))
	if g == "" {
		return GuessMiss
	}
	if g == w {
		return GuessCorrect
	}

	threshold := 1
	if utf8.RuneCountInString(w) >= 5 {
		threshold = 2
	}
	if levenshtein(g, w) <= threshold {
		return GuessClose
	}
	return GuessMiss
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
