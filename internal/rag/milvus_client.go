package rag

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/hunterwarburton/medsage/internal/logger"
)

// MilvusClient wraps the Milvus client for prototype persistence.
type MilvusClient struct {
	client     *milvusclient.Client
	collection string
}

// NewMilvusClient connects to Milvus at addr.
func NewMilvusClient(ctx context.Context, addr, collection string) (*MilvusClient, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	logger.Info("Connecting to Milvus at %s (collection prefix %s)", addr, collection)

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}
	return &MilvusClient{client: c, collection: collection}, nil
}

// Close releases the connection.
func (c *MilvusClient) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// collectionFor returns the collection holding vectors of one embedding
// model. Vector dimension is fixed per collection, so each model gets its own.
func collectionFor(base, modelID string) string {
	h := sha1.Sum([]byte(modelID))
	return base + "_" + hex.EncodeToString(h[:6])
}

// rowID is the primary key of one prototype row.
func rowID(modality, label string) string {
	return modality + "/" + label
}

// modalityFilter selects the rows of one modality and model.
func modalityFilter(modality, modelID string) string {
	return fmt.Sprintf("%s == %s && %s == %s",
		FieldModality, strconv.Quote(modality),
		FieldModelID, strconv.Quote(modelID))
}
