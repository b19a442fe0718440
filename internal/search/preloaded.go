package search

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/hunterwarburton/medsage/internal/core"
)

// RecordSource is the warm in-memory index. *dataset.Builder satisfies it.
type RecordSource interface {
	Loaded() bool
	Records() []core.SearchRecord
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

const (
	coverageWeight = 0.6
	ochiaiWeight   = 0.4
	phraseWeight   = 0.2
)

// PreloadedStage ranks the indexed records by token overlap with the query.
type PreloadedStage struct {
	source RecordSource
}

// NewPreloadedStage creates a stage over source.
func NewPreloadedStage(source RecordSource) *PreloadedStage {
	return &PreloadedStage{source: source}
}

func (s *PreloadedStage) Name() core.Strategy { return core.StrategyPreloaded }

func (s *PreloadedStage) TryRetrieve(ctx context.Context, q Query) ([]core.SearchResult, bool) {
	if s.source == nil || !s.source.Loaded() {
		return nil, false
	}
	qset := toTokenSet(q.Text)
	if len(qset) == 0 {
		return nil, false
	}
	phrase := strings.ToLower(q.Text)

	var hits []core.SearchResult
	for i, r := range s.source.Records() {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, false
		}
		if !typeAllowed(q.Types, string(r.Type)) {
			continue
		}
		score := LexicalScore(qset, phrase, r.SearchText)
		if score <= 0 {
			continue
		}
		hits = append(hits, recordResult(r, score))
	}
	return hits, len(hits) > 0
}

// LexicalScore blends query coverage with the Ochiai coefficient between the
// query tokens and the text tokens, plus a bonus when the whole lowercased
// phrase occurs in text. It is zero when no query token occurs in text.
func LexicalScore(qset map[string]struct{}, phrase, text string) float64 {
	lower := strings.ToLower(text)
	seen := make(map[string]struct{})
	inter := 0
	for _, t := range tokenRe.FindAllString(lower, -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if inter == 0 {
		return 0
	}
	coverage := float64(inter) / float64(len(qset))
	ochiai := float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
	score := coverageWeight*coverage + ochiaiWeight*ochiai
	if phrase != "" && strings.Contains(lower, phrase) {
		score += phraseWeight
	}
	return min(score, 1.0)
}

func toTokenSet(s string) map[string]struct{} {
	tokens := tokenRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func recordResult(r core.SearchRecord, score float64) core.SearchResult {
	return core.SearchResult{
		ID:             r.ID,
		Dataset:        r.Dataset,
		Type:           string(r.Type),
		Content:        r.SearchText,
		Snippet:        r.Snippet,
		RelevanceScore: score,
		FilePath:       r.FilePath,
		Metadata:       r.Metadata,
	}
}
