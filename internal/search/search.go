// Package search implements the retrieval cascade: an ordered list of
// stages tried in turn until one yields results, followed by enrichment and
// pagination.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/logger"
)

const (
	DefaultTopK  = 50
	DefaultLimit = 10
	MaxLimit     = 100
)

// Query is one search request.
type Query struct {
	Text  string   `json:"query"`
	Types []string `json:"types,omitempty"`
	TopK  int      `json:"top_k,omitempty"`
	Page  int      `json:"page,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// Page is one page of cascade output.
type Page struct {
	Query      string              `json:"query"`
	Results    []core.SearchResult `json:"results"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
	TotalPages int                 `json:"total_pages"`
	HasMore    bool                `json:"has_more"`
	Strategy   core.Strategy       `json:"strategy,omitempty"`
}

// Stage is one retrieval strategy. A stage reports ok=false, or an empty
// slice, when it has nothing to offer; it never fails the cascade.
type Stage interface {
	Name() core.Strategy
	TryRetrieve(ctx context.Context, q Query) ([]core.SearchResult, bool)
}

// Cascade runs stages in order and returns the first non-empty result set.
type Cascade struct {
	stages   []Stage
	enricher *Enricher
	topK     int
	limit    int
}

// CascadeOption configures a Cascade.
type CascadeOption func(*Cascade)

// WithEnricher replaces the default enricher.
func WithEnricher(e *Enricher) CascadeOption {
	return func(c *Cascade) { c.enricher = e }
}

// WithDefaults sets the top-k and page size used when a query leaves them unset.
func WithDefaults(topK, limit int) CascadeOption {
	return func(c *Cascade) {
		if topK > 0 {
			c.topK = topK
		}
		if limit > 0 {
			c.limit = min(limit, MaxLimit)
		}
	}
}

// NewCascade creates a cascade over stages, tried in the given order.
func NewCascade(stages []Stage, opts ...CascadeOption) *Cascade {
	c := &Cascade{
		stages:   stages,
		enricher: NewEnricher(""),
		topK:     DefaultTopK,
		limit:    DefaultLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs the cascade for q. The only error is an empty query; every
// stage failure falls through, and a query nothing matches yields an empty
// page.
func (c *Cascade) Search(ctx context.Context, q Query) (*Page, error) {
	q = c.normalize(q)
	if q.Text == "" {
		return nil, core.ErrEmptyQuery
	}

	for _, stage := range c.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		hits, ok := stage.TryRetrieve(ctx, q)
		if !ok || len(hits) == 0 {
			logger.SearchDebug("Stage %s: no results (%s)", stage.Name(), time.Since(start))
			continue
		}

		results := c.finish(stage.Name(), q, hits)
		if len(results) == 0 {
			logger.SearchDebug("Stage %s: all %d hits filtered out", stage.Name(), len(hits))
			continue
		}
		logger.SearchInfo("Stage %s answered %q with %d results in %s", stage.Name(), q.Text, len(results), time.Since(start))
		return paginate(q, results, stage.Name()), nil
	}

	logger.SearchInfo("No stage matched %q", q.Text)
	return paginate(q, nil, ""), nil
}

// finish filters, de-duplicates, ranks, caps and enriches one stage's hits.
func (c *Cascade) finish(strategy core.Strategy, q Query, hits []core.SearchResult) []core.SearchResult {
	hits = lo.Filter(hits, func(r core.SearchResult, _ int) bool {
		return r.ID != "" && typeAllowed(q.Types, r.Type)
	})
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].RelevanceScore > hits[j].RelevanceScore
	})
	// the best-scored copy of an id wins
	hits = lo.UniqBy(hits, func(r core.SearchResult) string { return r.ID })
	if len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}
	for i := range hits {
		hits[i].Strategy = strategy
		c.enricher.Enrich(&hits[i])
	}
	return hits
}

func (c *Cascade) normalize(q Query) Query {
	q.Text = strings.TrimSpace(q.Text)
	q.Types = NormalizeTypes(q.Types)
	if q.TopK <= 0 {
		q.TopK = c.topK
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = c.limit
	}
	q.Limit = min(q.Limit, MaxLimit)
	return q
}

var typeAliases = map[string]core.RecordType{
	"text":    core.RecordText,
	"texts":   core.RecordText,
	"image":   core.RecordImage,
	"images":  core.RecordImage,
	"tabular": core.RecordTabular,
	"csv":     core.RecordTabular,
	"table":   core.RecordTabular,
}

// NormalizeTypes maps type names and aliases onto record types, dropping
// unknown names. An empty result means every type is allowed.
func NormalizeTypes(types []string) []string {
	var out []string
	for _, t := range types {
		for _, part := range strings.Split(t, ",") {
			rt, ok := typeAliases[strings.ToLower(strings.TrimSpace(part))]
			if !ok {
				continue
			}
			out = append(out, string(rt))
		}
	}
	return lo.Uniq(out)
}

func typeAllowed(types []string, t string) bool {
	return len(types) == 0 || lo.Contains(types, t)
}

func paginate(q Query, results []core.SearchResult, strategy core.Strategy) *Page {
	total := len(results)
	totalPages := (total + q.Limit - 1) / q.Limit
	// pages past the end are empty; checked before multiplying so huge page
	// numbers cannot overflow
	start := total
	if q.Page <= totalPages {
		start = (q.Page - 1) * q.Limit
	}
	end := min(start+q.Limit, total)

	page := results[start:end]
	if page == nil {
		page = []core.SearchResult{}
	}
	return &Page{
		Query:      q.Text,
		Results:    page,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: totalPages,
		HasMore:    end < total,
		Strategy:   strategy,
	}
}

func (p *Page) String() string {
	return fmt.Sprintf("%d/%d results (page %d of %d, %s)", len(p.Results), p.Total, p.Page, p.TotalPages, p.Strategy)
}
