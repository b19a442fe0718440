package rag

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/hunterwarburton/medsage/internal/logger"
)

// hasCollection reports whether name exists.
func (c *MilvusClient) hasCollection(ctx context.Context, name string) (bool, error) {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return false, fmt.Errorf("failed to check if collection exists: %w", err)
	}
	return exists, nil
}

// ensurePrototypeCollection creates and loads the prototype collection for
// vectors of the given dimension.
func (c *MilvusClient) ensurePrototypeCollection(ctx context.Context, name string, dim int) error {
	exists, err := c.hasCollection(ctx, name)
	if err != nil {
		return err
	}

	if !exists {
		createOpt := milvusclient.NewCreateCollectionOption(name, prototypeSchema(name, dim))
		if err := c.client.CreateCollection(ctx, createOpt); err != nil {
			return fmt.Errorf("failed to create prototype collection: %w", err)
		}

		vecIdx := index.NewHNSWIndex(entity.IP, 16, 200)
		if _, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, FieldVector, vecIdx)); err != nil {
			return fmt.Errorf("failed to create index on vector field: %w", err)
		}
		logger.Info("Created prototype collection %s (dim %d)", name, dim)
	}

	// Loading an already loaded collection is a no-op
	if _, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name)); err != nil {
		return fmt.Errorf("failed to load collection %s into memory: %w", name, err)
	}
	return nil
}

func prototypeSchema(name string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    "Condition prototype embeddings per modality",
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": DefaultIDMaxLength},
			},
			{
				Name:       FieldModality,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{
				Name:       FieldModelID,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": DefaultIDMaxLength},
			},
			{
				Name:       FieldLabel,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": DefaultLabelMaxLength},
			},
			{
				Name:       FieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", dim)},
			},
		},
	}
}
