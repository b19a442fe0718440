package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/logger"
)

// OllamaEmbedder implements core.EmbedService against an Ollama server's
// /api/embeddings endpoint.
type OllamaEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaEmbedder creates a new OllamaEmbedder instance
func NewOllamaEmbedder(endpoint, model string, timeout time.Duration) *OllamaEmbedder {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaEmbedder{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Embed returns the embedding vector for text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out embedResponse
	if err := e.post(ctx, "/api/embeddings", embedRequest{Model: e.model, Prompt: text}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("embedder error: %s", out.Error)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", core.ErrMalformedModelOutput)
	}

	logger.Debug("Embedded %d chars with %s (dim %d)", len(text), e.model, len(out.Embedding))
	return out.Embedding, nil
}

// post sends payload as JSON to path and decodes the reply into out.
// Transport failures and non-200 replies are transient.
func (e *OllamaEmbedder) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: embedding request: %v", core.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading embedding response: %v", core.ErrTransientNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: embedder returned status %d: %s", core.ErrTransientNetwork, resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decoding embedding: %v", core.ErrMalformedModelOutput, err)
	}
	return nil
}

type batchRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type batchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// EmbedBatch embeds texts in one call to /api/embed. Vectors are returned in
// input order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out batchResponse
	if err := e.post(ctx, "/api/embed", batchRequest{Model: e.model, Input: texts}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("embedder error: %s", out.Error)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", core.ErrMalformedModelOutput, len(out.Embeddings), len(texts))
	}
	for i, v := range out.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at %d", core.ErrMalformedModelOutput, i)
		}
	}

	logger.Debug("Embedded %d texts with %s (dim %d)", len(texts), e.model, len(out.Embeddings[0]))
	return out.Embeddings, nil
}

// ModelID identifies the model behind the vectors.
func (e *OllamaEmbedder) ModelID() string {
	return "ollama:" + e.model
}
