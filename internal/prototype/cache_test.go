package prototype

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/medsage/internal/core"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	modelID string
	calls   atomic.Int64
	failOn  string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	f.mu.Lock()
	failOn := f.failOn
	f.mu.Unlock()
	if failOn != "" && strings.HasPrefix(text, failOn) {
		return nil, errors.New("embedder down")
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) ModelID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modelID
}

func (f *fakeEmbedder) setModel(id string) {
	f.mu.Lock()
	f.modelID = id
	f.mu.Unlock()
}

func (f *fakeEmbedder) setFail(prefix string) {
	f.mu.Lock()
	f.failOn = prefix
	f.mu.Unlock()
}

type batchEmbedder struct {
	fakeEmbedder
	batches atomic.Int64
}

func (b *batchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	b.batches.Add(1)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 2}
	}
	return out, nil
}

// gatedEmbedder blocks every call until release is closed.
type gatedEmbedder struct {
	fakeEmbedder
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func (g *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		g.calls.Add(1)
		return nil, ctx.Err()
	}
	return g.fakeEmbedder.Embed(ctx, text)
}

func TestCanonicalSentence(t *testing.T) {
	assert.Equal(t, "Melanoma condition in a patient", CanonicalSentence("Melanoma"))
}

func TestGetBuildsOncePerModel(t *testing.T) {
	emb := &fakeEmbedder{modelID: "m1"}
	c := NewCache(emb)
	labels := core.Labels(core.ModalitySkin)

	protos, err := c.Get(context.Background(), core.ModalitySkin)
	require.NoError(t, err)
	require.Len(t, protos, len(labels))
	for i, p := range protos {
		assert.Equal(t, labels[i], p.Label)
		assert.Equal(t, core.ModalitySkin, p.Modality)
	}
	assert.EqualValues(t, len(labels), emb.calls.Load())

	_, err = c.Get(context.Background(), core.ModalitySkin)
	require.NoError(t, err)
	assert.EqualValues(t, len(labels), emb.calls.Load(), "second call must hit the cache")
}

func TestModelChangeInvalidates(t *testing.T) {
	emb := &fakeEmbedder{modelID: "m1"}
	c := NewCache(emb)
	n := len(core.Labels(core.ModalityChest))

	_, err := c.Get(context.Background(), core.ModalityChest)
	require.NoError(t, err)

	emb.setModel("m2")
	_, err = c.Get(context.Background(), core.ModalityChest)
	require.NoError(t, err)
	assert.EqualValues(t, 2*n, emb.calls.Load())
}

func TestFailedBuildCachesNothing(t *testing.T) {
	emb := &fakeEmbedder{modelID: "m1"}
	emb.setFail("Pneumonia")
	c := NewCache(emb)

	_, err := c.Get(context.Background(), core.ModalityChest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pneumonia")

	c.mu.RLock()
	_, cached := c.entries[core.ModalityChest]
	c.mu.RUnlock()
	assert.False(t, cached)

	emb.setFail("")
	protos, err := c.Get(context.Background(), core.ModalityChest)
	require.NoError(t, err)
	assert.Len(t, protos, len(core.Labels(core.ModalityChest)))
}

func TestUnknownModality(t *testing.T) {
	c := NewCache(&fakeEmbedder{modelID: "m1"})
	_, err := c.Get(context.Background(), core.Modality("retina"))
	assert.ErrorIs(t, err, core.ErrUnknownModality)
}

func TestConcurrentGetBuildsOnce(t *testing.T) {
	emb := &fakeEmbedder{modelID: "m1"}
	c := NewCache(emb)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), core.ModalitySkin)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, len(core.Labels(core.ModalitySkin)), emb.calls.Load())
}

func TestStoreIsUsedAcrossCaches(t *testing.T) {
	store := NewFileStore(t.TempDir())
	first := &fakeEmbedder{modelID: "m1"}
	_, err := NewCache(first, WithStore(store)).Get(context.Background(), core.ModalitySkin)
	require.NoError(t, err)

	second := &fakeEmbedder{modelID: "m1"}
	protos, err := NewCache(second, WithStore(store)).Get(context.Background(), core.ModalitySkin)
	require.NoError(t, err)
	assert.Len(t, protos, len(core.Labels(core.ModalitySkin)))
	assert.Zero(t, second.calls.Load(), "prototypes should come from the store")

	third := &fakeEmbedder{modelID: "m2"}
	_, err = NewCache(third, WithStore(store)).Get(context.Background(), core.ModalitySkin)
	require.NoError(t, err)
	assert.Positive(t, third.calls.Load(), "a different model must not reuse stored vectors")
}

func TestPartialStoredSetIsIgnored(t *testing.T) {
	store := NewFileStore(t.TempDir())
	partial := []core.ConditionPrototype{{Label: "Melanoma", Embedding: []float32{1}, Modality: core.ModalitySkin}}
	require.NoError(t, store.Save(context.Background(), core.ModalitySkin, "m1", partial))

	emb := &fakeEmbedder{modelID: "m1"}
	protos, err := NewCache(emb, WithStore(store)).Get(context.Background(), core.ModalitySkin)
	require.NoError(t, err)
	assert.Len(t, protos, len(core.Labels(core.ModalitySkin)))
	assert.EqualValues(t, len(core.Labels(core.ModalitySkin)), emb.calls.Load())
}

func TestBatchEmbedderBuildsInOneCall(t *testing.T) {
	emb := &batchEmbedder{fakeEmbedder: fakeEmbedder{modelID: "m1"}}
	c := NewCache(emb)
	labels := core.Labels(core.ModalityChest)

	protos, err := c.Get(context.Background(), core.ModalityChest)
	require.NoError(t, err)
	require.Len(t, protos, len(labels))
	for i, p := range protos {
		assert.Equal(t, labels[i], p.Label)
		assert.Equal(t, []float32{float32(len(CanonicalSentence(labels[i]))), 2}, p.Embedding)
	}
	assert.EqualValues(t, 1, emb.batches.Load())
	assert.Zero(t, emb.calls.Load())
}

func TestCancelledCallerDoesNotAbortSharedBuild(t *testing.T) {
	emb := &gatedEmbedder{
		fakeEmbedder: fakeEmbedder{modelID: "m1"},
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	c := NewCache(emb)
	n := len(core.Labels(core.ModalitySkin))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, core.ModalitySkin)
		errc <- err
	}()

	<-emb.started
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(emb.release)
	protos, err := c.Get(context.Background(), core.ModalitySkin)
	require.NoError(t, err)
	assert.Len(t, protos, n)
	assert.EqualValues(t, n, emb.calls.Load(), "the first build must complete instead of being redone")
}
