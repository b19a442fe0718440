// Command medsearch is the standalone search process the retrieval cascade can
// shell out to. It takes one JSON argument and prints a JSON array of results.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/samber/lo"

	"github.com/hunterwarburton/medsage/internal/config"
	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/dataset"
	"github.com/hunterwarburton/medsage/internal/logger"
	"github.com/hunterwarburton/medsage/internal/relevance"
	"github.com/hunterwarburton/medsage/internal/search"
)

func main() {
	// stdout carries the result array
	logger.InitTo(os.Getenv("MEDSEARCH_DEBUG") != "", "stderr")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) != 2 {
		fail(fmt.Errorf("usage: medsearch '<json args>'"))
	}
	var args search.ProcessArgs
	if err := json.Unmarshal([]byte(os.Args[1]), &args); err != nil {
		fail(fmt.Errorf("invalid arguments: %w", err))
	}

	results, err := run(ctx, args)
	if err != nil {
		fail(err)
	}
	if results == nil {
		results = []core.SearchResult{}
	}
	if err := json.NewEncoder(os.Stdout).Encode(results); err != nil {
		fail(err)
	}
}

func run(ctx context.Context, args search.ProcessArgs) ([]core.SearchResult, error) {
	if args.Query == "" {
		return nil, core.ErrEmptyQuery
	}
	types := search.NormalizeTypes(args.SearchTypes)
	topK := args.TopK
	if topK <= 0 {
		topK = search.DefaultTopK
	}

	if args.MongoURI != "" {
		defaults := config.Default().Mongo
		mirror, err := dataset.NewMongoMirror(ctx, args.MongoURI, defaults.Database, defaults.Collection)
		if err == nil {
			defer mirror.Close(context.Background())
			hits, err := mirror.TextSearch(ctx, args.Query, types, topK)
			if err == nil && len(hits) > 0 {
				return hits, nil
			}
			if err != nil {
				logger.SearchWarn("Mongo text search failed, scanning files: %v", err)
			}
		} else {
			logger.SearchWarn("Mongo unavailable, scanning files: %v", err)
		}
	}

	builder := dataset.NewBuilder(args.DatasetsDir)
	if err := builder.Load(ctx); err != nil {
		return nil, err
	}
	if builder.Stats().TotalItems == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrMissingCorpus, args.DatasetsDir)
	}
	return rankRecords(builder.Records(), args.Query, types, topK), nil
}

// rankRecords scores every record with the relevance scorer and keeps the
// topK best of the allowed types.
func rankRecords(records []core.SearchRecord, query string, types []string, topK int) []core.SearchResult {
	var out []core.SearchResult
	for _, r := range records {
		if len(types) > 0 && !lo.Contains(types, string(r.Type)) {
			continue
		}
		score := relevance.ScoreWithSnippet(r.SearchText, r.Snippet, query)
		if score <= 0 {
			continue
		}
		out = append(out, core.SearchResult{
			ID:             r.ID,
			Dataset:        r.Dataset,
			Type:           string(r.Type),
			Content:        r.SearchText,
			Snippet:        r.Snippet,
			RelevanceScore: score,
			FilePath:       r.FilePath,
			Metadata:       r.Metadata,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func fail(err error) {
	_ = json.NewEncoder(os.Stderr).Encode(map[string]string{"error": err.Error()})
	os.Exit(1)
}
