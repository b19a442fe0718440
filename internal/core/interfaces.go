package core

import "context"

// EmbedService turns text into a dense vector. ModelID identifies the model
// behind the vectors so caches can be invalidated when it changes.
type EmbedService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}

// BatchEmbedService embeds several texts in one request. Vectors come back in
// input order.
type BatchEmbedService interface {
	EmbedService
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
