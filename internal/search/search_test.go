package search

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hunterwarburton/medsage/internal/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStage struct {
	name  core.Strategy
	hits  []core.SearchResult
	ok    bool
	calls int
}

func (s *fakeStage) Name() core.Strategy { return s.name }

func (s *fakeStage) TryRetrieve(context.Context, Query) ([]core.SearchResult, bool) {
	s.calls++
	return s.hits, s.ok
}

func hit(id, typ string, score float64) core.SearchResult {
	return core.SearchResult{ID: id, Dataset: "medical-knowledge", Type: typ, Content: id, Snippet: id, RelevanceScore: score}
}

func TestCascadeFallsThroughToFirstNonEmptyStage(t *testing.T) {
	failed := &fakeStage{name: core.StrategyPreloaded, ok: false}
	empty := &fakeStage{name: core.StrategyExternalProcess, ok: true}
	fs := &fakeStage{name: core.StrategyFilesystem, ok: true, hits: []core.SearchResult{hit("a", "text", 0.4)}}
	never := &fakeStage{name: core.StrategyBuiltin, ok: true, hits: []core.SearchResult{hit("b", "text", 0.9)}}

	page, err := NewCascade([]Stage{failed, empty, fs, never}).Search(context.Background(), Query{Text: "chest"})
	require.NoError(t, err)
	assert.Equal(t, core.StrategyFilesystem, page.Strategy)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "a", page.Results[0].ID)
	assert.Equal(t, core.StrategyFilesystem, page.Results[0].Strategy)
	assert.Equal(t, 1, failed.calls)
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 0, never.calls)
}

func TestCascadeDeduplicatesKeepingBestScore(t *testing.T) {
	stage := &fakeStage{name: core.StrategyPreloaded, ok: true, hits: []core.SearchResult{
		hit("x", "text", 0.3),
		hit("y", "text", 0.5),
		hit("x", "text", 0.8),
	}}
	page, err := NewCascade([]Stage{stage}).Search(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	require.Len(t, page.Results, 2)
	assert.Equal(t, "x", page.Results[0].ID)
	assert.InDelta(t, 0.8, page.Results[0].RelevanceScore, 1e-9)
	assert.Equal(t, "y", page.Results[1].ID)
}

func TestCascadeTypeFilterCanFallThrough(t *testing.T) {
	images := &fakeStage{name: core.StrategyPreloaded, ok: true, hits: []core.SearchResult{hit("img", "image", 0.9)}}
	text := &fakeStage{name: core.StrategyBuiltin, ok: true, hits: []core.SearchResult{hit("txt", "text", 0.2)}}

	page, err := NewCascade([]Stage{images, text}).Search(context.Background(), Query{Text: "q", Types: []string{"texts"}})
	require.NoError(t, err)
	assert.Equal(t, core.StrategyBuiltin, page.Strategy)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "txt", page.Results[0].ID)
}

func TestCascadeEmptyQuery(t *testing.T) {
	_, err := NewCascade(nil).Search(context.Background(), Query{Text: "   "})
	assert.ErrorIs(t, err, core.ErrEmptyQuery)
}

func TestCascadeNoMatchIsEmptyPage(t *testing.T) {
	page, err := NewCascade([]Stage{NewBuiltinStage()}).Search(context.Background(), Query{Text: "zzzz qqqq"})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.NotNil(t, page.Results)
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, core.Strategy(""), page.Strategy)
	assert.False(t, page.HasMore)
}

func TestCascadePagination(t *testing.T) {
	var hits []core.SearchResult
	for i := 0; i < 25; i++ {
		hits = append(hits, hit(fmt.Sprintf("r%02d", i), "text", 1-float64(i)/100))
	}
	stage := &fakeStage{name: core.StrategyPreloaded, ok: true, hits: hits}
	c := NewCascade([]Stage{stage})

	page, err := c.Search(context.Background(), Query{Text: "q", Page: 3})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, DefaultLimit, page.Limit)
	require.Len(t, page.Results, 5)
	assert.Equal(t, "r20", page.Results[0].ID)
	assert.False(t, page.HasMore)

	page, err = c.Search(context.Background(), Query{Text: "q", Limit: 10})
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, 1, page.Page)

	page, err = c.Search(context.Background(), Query{Text: "q", TopK: 4, Page: 9})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Empty(t, page.Results)
}

func TestCascadeHugePageIsEmpty(t *testing.T) {
	c := NewCascade([]Stage{NewBuiltinStage()})
	for _, p := range []int{1 << 62, math.MaxInt} {
		page, err := c.Search(context.Background(), Query{Text: "chest pain", Page: p, Limit: 4})
		require.NoError(t, err)
		assert.NotNil(t, page.Results)
		assert.Empty(t, page.Results)
		assert.False(t, page.HasMore)
		assert.Positive(t, page.Total)
	}
}

func TestBuiltinOnlyChestPain(t *testing.T) {
	page, err := NewCascade([]Stage{NewBuiltinStage()}).Search(context.Background(), Query{Text: "chest pain"})
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
	top := page.Results[0]
	assert.Equal(t, "chest_pain_1", top.ID)
	assert.GreaterOrEqual(t, top.RelevanceScore, 0.9)
	assert.LessOrEqual(t, top.RelevanceScore, 1.0)
	assert.Equal(t, core.StrategyBuiltin, page.Strategy)
	assert.Equal(t, "Chest Pain Evaluation", top.Title)
	assert.Equal(t, "General Medicine", top.Category)
}

func TestCascadeNeverReturnsDuplicateIDs(t *testing.T) {
	stages := []Stage{
		&fakeStage{name: core.StrategyPreloaded, ok: true, hits: []core.SearchResult{
			hit("dup", "text", 0.1), hit("dup", "text", 0.2), hit("dup", "text", 0.3), hit("other", "text", 0.3),
		}},
	}
	page, err := NewCascade(stages).Search(context.Background(), Query{Text: "q", Limit: 100})
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, r := range page.Results {
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
	}
}

func TestNormalizeTypes(t *testing.T) {
	assert.Equal(t, []string{"tabular", "image"}, NormalizeTypes([]string{"csv", "images,table", "bogus"}))
	assert.Empty(t, NormalizeTypes(nil))
}

func TestCascadeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stage := &fakeStage{name: core.StrategyBuiltin, ok: true, hits: []core.SearchResult{hit("a", "text", 1)}}
	_, err := NewCascade([]Stage{stage}).Search(ctx, Query{Text: "q"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stage.calls)
}
