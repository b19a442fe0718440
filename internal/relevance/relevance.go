// Package relevance scores text against a free-text query by keyword and
// phrase overlap.
package relevance

import (
	"strings"

	"github.com/samber/lo"
)

const (
	phraseBonus   = 0.5
	textWeight    = 0.2
	snippetBonus  = 0.1
	coverageBonus = 0.3
	minWordLen    = 3
)

// QueryWords lowercases query and keeps distinct words longer than two characters.
func QueryWords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	return lo.Uniq(lo.Filter(words, func(w string, _ int) bool { return len(w) >= minWordLen }))
}

// Score rates text against query in [0,1].
func Score(text, query string) float64 {
	return ScoreWithSnippet(text, "", query)
}

// ScoreWithSnippet rates text plus a secondary snippet field against query.
// A full-phrase hit in text adds 0.5, each query word found in text 0.2 and
// in the snippet 0.1, plus 0.3 times the fraction of words found anywhere.
func ScoreWithSnippet(text, snippet, query string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	lowerText := strings.ToLower(text)
	lowerSnippet := strings.ToLower(snippet)

	score := 0.0
	if strings.Contains(lowerText, q) {
		score += phraseBonus
	}

	words := QueryWords(q)
	matched := 0
	for _, w := range words {
		inText := strings.Contains(lowerText, w)
		inSnippet := lowerSnippet != "" && strings.Contains(lowerSnippet, w)
		if inText {
			score += textWeight
		}
		if inSnippet {
			score += snippetBonus
		}
		if inText || inSnippet {
			matched++
		}
	}
	if len(words) > 0 {
		score += coverageBonus * float64(matched) / float64(len(words))
	}
	return min(score, 1.0)
}
