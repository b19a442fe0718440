package prototype

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/logger"
)

// CanonicalSentence is the text embedded for a condition label.
func CanonicalSentence(label string) string {
	return fmt.Sprintf("%s condition in a patient", label)
}

// Store persists prototype sets between runs.
type Store interface {
	Load(ctx context.Context, modality core.Modality, modelID string) ([]core.ConditionPrototype, bool, error)
	Save(ctx context.Context, modality core.Modality, modelID string, prototypes []core.ConditionPrototype) error
}

type entry struct {
	modelID    string
	prototypes []core.ConditionPrototype
}

// Cache holds one prototype per condition label for each modality, keyed by
// the embedding model that produced them. Returned slices are shared and must
// be treated as read-only.
type Cache struct {
	embedder core.EmbedService
	store    Store
	workers  int

	mu      sync.RWMutex
	entries map[core.Modality]entry
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore loads prototypes from s before embedding and saves fresh builds to it.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithWorkers bounds the number of concurrent embedding calls during a build.
func WithWorkers(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.workers = n
		}
	}
}

// NewCache creates a prototype cache backed by embedder.
func NewCache(embedder core.EmbedService, opts ...Option) *Cache {
	c := &Cache{
		embedder: embedder,
		workers:  4,
		entries:  make(map[core.Modality]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the prototypes for modality, building them on first use or
// when the embedding model has changed since the last build.
func (c *Cache) Get(ctx context.Context, modality core.Modality) ([]core.ConditionPrototype, error) {
	labels := core.Labels(modality)
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownModality, modality)
	}
	modelID := c.embedder.ModelID()

	c.mu.RLock()
	e, ok := c.entries[modality]
	c.mu.RUnlock()
	if ok && e.modelID == modelID {
		return e.prototypes, nil
	}

	// the build outlives the caller that started it; joined callers still
	// need the result
	ch := c.group.DoChan(string(modality)+"|"+modelID, func() (interface{}, error) {
		return c.build(context.WithoutCancel(ctx), modality, modelID, labels)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]core.ConditionPrototype), nil
	}
}

func (c *Cache) build(ctx context.Context, modality core.Modality, modelID string, labels []string) ([]core.ConditionPrototype, error) {
	// a build may have finished between the caller's lookup and Do
	c.mu.RLock()
	e, ok := c.entries[modality]
	c.mu.RUnlock()
	if ok && e.modelID == modelID {
		return e.prototypes, nil
	}

	if protos, ok := c.loadStored(ctx, modality, modelID, labels); ok {
		c.put(modality, modelID, protos)
		return protos, nil
	}

	logger.Info("Building %d %s prototypes with %s", len(labels), modality, modelID)
	vectors, err := c.embedLabels(ctx, labels)
	if err != nil {
		// nothing is cached for a partial set
		return nil, err
	}
	protos := make([]core.ConditionPrototype, len(labels))
	for i, label := range labels {
		protos[i] = core.ConditionPrototype{Label: label, Embedding: vectors[i], Modality: modality}
	}

	if c.store != nil {
		if err := c.store.Save(ctx, modality, modelID, protos); err != nil {
			logger.Warn("Failed to persist %s prototypes: %v", modality, err)
		}
	}
	c.put(modality, modelID, protos)
	return protos, nil
}

// embedLabels embeds the canonical sentence of every label, in one request
// when the embedder supports batches and with bounded fan-out otherwise.
func (c *Cache) embedLabels(ctx context.Context, labels []string) ([][]float32, error) {
	sentences := make([]string, len(labels))
	for i, label := range labels {
		sentences[i] = CanonicalSentence(label)
	}

	if batch, ok := c.embedder.(core.BatchEmbedService); ok {
		vectors, err := batch.EmbedBatch(ctx, sentences)
		if err != nil {
			return nil, fmt.Errorf("embedding prototypes: %w", err)
		}
		if len(vectors) != len(labels) {
			return nil, fmt.Errorf("%w: %d vectors for %d prototypes", core.ErrMalformedModelOutput, len(vectors), len(labels))
		}
		return vectors, nil
	}

	vectors := make([][]float32, len(labels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, sentence := range sentences {
		g.Go(func() error {
			vec, err := c.embedder.Embed(gctx, sentence)
			if err != nil {
				return fmt.Errorf("embedding prototype %q: %w", labels[i], err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *Cache) loadStored(ctx context.Context, modality core.Modality, modelID string, labels []string) ([]core.ConditionPrototype, bool) {
	if c.store == nil {
		return nil, false
	}
	stored, ok, err := c.store.Load(ctx, modality, modelID)
	if err != nil {
		logger.Warn("Failed to load stored %s prototypes: %v", modality, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	protos, ok := alignToLabels(stored, labels)
	if !ok {
		logger.Debug("Stored %s prototypes do not match the label set; rebuilding", modality)
		return nil, false
	}
	logger.Debug("Loaded %d %s prototypes from store", len(protos), modality)
	return protos, true
}

func (c *Cache) put(modality core.Modality, modelID string, protos []core.ConditionPrototype) {
	c.mu.Lock()
	c.entries[modality] = entry{modelID: modelID, prototypes: protos}
	c.mu.Unlock()
}

// alignToLabels reorders stored to match labels. It fails unless stored
// covers exactly the label set with non-empty vectors.
func alignToLabels(stored []core.ConditionPrototype, labels []string) ([]core.ConditionPrototype, bool) {
	if len(stored) != len(labels) {
		return nil, false
	}
	byLabel := make(map[string]core.ConditionPrototype, len(stored))
	for _, p := range stored {
		if len(p.Embedding) == 0 {
			return nil, false
		}
		byLabel[p.Label] = p
	}
	out := make([]core.ConditionPrototype, len(labels))
	for i, label := range labels {
		p, ok := byLabel[label]
		if !ok {
			return nil, false
		}
		out[i] = p
	}
	return out, true
}
