package main

import (
	"context"
	"time"

	"github.com/hunterwarburton/medsage/internal/config"
	"github.com/hunterwarburton/medsage/internal/dataset"
	"github.com/hunterwarburton/medsage/internal/diagnose"
	"github.com/hunterwarburton/medsage/internal/embed"
	"github.com/hunterwarburton/medsage/internal/fusion"
	"github.com/hunterwarburton/medsage/internal/llm"
	"github.com/hunterwarburton/medsage/internal/logger"
	"github.com/hunterwarburton/medsage/internal/prototype"
	"github.com/hunterwarburton/medsage/internal/rag"
	"github.com/hunterwarburton/medsage/internal/search"
)

// app holds the wired services shared by every subcommand.
type app struct {
	datasets  *dataset.Builder
	cascade   *search.Cascade
	diagnoser *diagnose.Service
	closers   []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.AppConfig) *app {
	a := &app{}

	builderOpts := []dataset.Option{
		dataset.WithMaxRows(cfg.Datasets.MaxRowsPerFile),
		dataset.WithWorkers(cfg.Datasets.Workers),
	}
	if cfg.Mongo.URI != "" {
		mirror, err := dataset.NewMongoMirror(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			logger.Warn("MongoDB mirror disabled: %v", err)
		} else {
			if err := mirror.EnsureIndexes(ctx); err != nil {
				logger.Warn("Failed to create mirror indexes: %v", err)
			}
			builderOpts = append(builderOpts, dataset.WithMirror(mirror))
			a.closers = append(a.closers, mirror.Close)
		}
	}
	a.datasets = dataset.NewBuilder(cfg.Datasets.Dir, builderOpts...)

	stages := []search.Stage{search.NewPreloadedStage(a.datasets)}
	if len(cfg.Search.ProcessCommand) > 0 {
		runner := &search.ExecRunner{
			Command: cfg.Search.ProcessCommand,
			Timeout: time.Duration(cfg.Search.ProcessTimeoutSecs) * time.Second,
		}
		stages = append(stages, search.NewProcessStage(runner, cfg.Datasets.Dir, cfg.Mongo.URI))
	}
	stages = append(stages,
		search.NewFilesystemStage(cfg.Datasets.Dir, cfg.Search.FilesystemDirs, cfg.Search.FilesystemMaxFiles),
		search.NewBuiltinStage(),
	)
	a.cascade = search.NewCascade(stages,
		search.WithEnricher(search.NewEnricher(cfg.Datasets.Dir)),
		search.WithDefaults(cfg.Search.DefaultTopK, cfg.Search.PageSize),
	)

	embedder := embed.NewOllamaEmbedder(cfg.Embedder.Endpoint, cfg.Embedder.Model, time.Duration(cfg.Embedder.TimeoutSecs)*time.Second)
	cache := prototype.NewCache(embedder, prototype.WithStore(a.prototypeStore(ctx, cfg)))
	engine := fusion.NewEngine(cache, fusion.Params{
		TextWeight:        cfg.Fusion.TextWeight,
		ImageWeight:       cfg.Fusion.ImageWeight,
		SeverityThreshold: cfg.Fusion.SeverityThreshold,
		ModerateThreshold: cfg.Fusion.ModerateThreshold,
		TopN:              cfg.Fusion.TopN,
	})
	vision := llm.NewOllamaVisionService(cfg.Vision.Endpoint, cfg.Vision.Model,
		time.Duration(cfg.Vision.TimeoutSecs)*time.Second, cfg.Vision.JPEGQuality)
	a.diagnoser = diagnose.NewService(vision, embedder, engine)

	return a
}

// prototypeStore prefers Milvus when configured and reachable, otherwise the
// on-disk cache.
func (a *app) prototypeStore(ctx context.Context, cfg *config.AppConfig) prototype.Store {
	if cfg.Milvus.Address != "" {
		client, err := rag.NewMilvusClient(ctx, cfg.Milvus.Address, cfg.Milvus.Collection)
		if err == nil {
			a.closers = append(a.closers, client.Close)
			return rag.NewPrototypeStore(client)
		}
		logger.Warn("Milvus prototype store unavailable, using %s: %v", cfg.Prototypes.CacheDir, err)
	}
	return prototype.NewFileStore(cfg.Prototypes.CacheDir)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			logger.Warn("Shutdown: %v", err)
		}
	}
}
