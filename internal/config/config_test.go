package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Search.ProcessTimeoutSecs)
	assert.Equal(t, 1000, cfg.Datasets.MaxRowsPerFile)
	assert.InDelta(t, 0.5, cfg.Fusion.TextWeight, 1e-9)
	assert.InDelta(t, 0.5, cfg.Fusion.ImageWeight, 1e-9)
	assert.InDelta(t, 0.6, cfg.Fusion.ModerateThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Fusion.TopN)
}

func TestLoadPartialFileKeepsExplicitValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
vision:
  model: llava:13b
search:
  process_command: ["python3", "searchEngine.py"]
fusion:
  text_weight: 0.7
  image_weight: 0.3
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llava:13b", cfg.Vision.Model)
	assert.Equal(t, []string{"python3", "searchEngine.py"}, cfg.Search.ProcessCommand)
	assert.InDelta(t, 0.7, cfg.Fusion.TextWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Fusion.ImageWeight, 1e-9)
	assert.Equal(t, "http://localhost:11434", cfg.Vision.Endpoint)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Datasets.Dir = "/srv/corpora"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/corpora", loaded.Datasets.Dir)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("SEARCH_PROCESS", "medsearch --quiet")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("DEBUG", "true")

	cfg := Default()
	ApplyEnv(cfg)
	assert.Equal(t, "http://gpu-box:11434", cfg.Vision.Endpoint)
	assert.Equal(t, "http://gpu-box:11434", cfg.Embedder.Endpoint)
	assert.Equal(t, []string{"medsearch", "--quiet"}, cfg.Search.ProcessCommand)
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.True(t, cfg.Log.Debug)
}
