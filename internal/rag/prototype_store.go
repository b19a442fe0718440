package rag

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/logger"
)

// PrototypeStore persists condition prototypes in Milvus.
type PrototypeStore struct {
	milvus *MilvusClient
}

// NewPrototypeStore creates a store over an open client.
func NewPrototypeStore(milvus *MilvusClient) *PrototypeStore {
	return &PrototypeStore{milvus: milvus}
}

// Load returns the stored prototypes of modality for modelID.
func (s *PrototypeStore) Load(ctx context.Context, modality core.Modality, modelID string) ([]core.ConditionPrototype, bool, error) {
	name := collectionFor(s.milvus.collection, modelID)
	exists, err := s.milvus.hasCollection(ctx, name)
	if err != nil || !exists {
		return nil, false, err
	}
	if _, err := s.milvus.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name)); err != nil {
		return nil, false, fmt.Errorf("failed to load collection %s: %w", name, err)
	}

	queryOpt := milvusclient.NewQueryOption(name).
		WithFilter(modalityFilter(string(modality), modelID)).
		WithOutputFields(FieldLabel, FieldVector).
		WithLimit(len(core.Labels(modality)) * 2)

	results, err := s.milvus.client.Query(ctx, queryOpt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query prototypes: %w", err)
	}

	labelCol := results.GetColumn(FieldLabel)
	vecCol := results.GetColumn(FieldVector)
	if labelCol == nil || vecCol == nil || labelCol.Len() == 0 {
		return nil, false, nil
	}

	labels := make([]string, 0, labelCol.Len())
	vectors := make([][]float32, 0, labelCol.Len())
	for i := 0; i < labelCol.Len(); i++ {
		label, err := labelCol.GetAsString(i)
		if err != nil {
			logger.Warn("Error getting label from column at %d: %v", i, err)
			continue
		}
		raw, err := vecCol.Get(i)
		if err != nil {
			logger.Warn("Error getting vector from column at %d: %v", i, err)
			continue
		}
		labels = append(labels, label)
		vectors = append(vectors, asFloat32s(raw))
	}
	return rowsToPrototypes(modality, labels, vectors), true, nil
}

// Save replaces the stored prototypes of modality for modelID.
func (s *PrototypeStore) Save(ctx context.Context, modality core.Modality, modelID string, prototypes []core.ConditionPrototype) error {
	if len(prototypes) == 0 {
		return nil
	}
	dim := len(prototypes[0].Embedding)
	name := collectionFor(s.milvus.collection, modelID)
	if err := s.milvus.ensurePrototypeCollection(ctx, name, dim); err != nil {
		return err
	}

	deleteOpt := milvusclient.NewDeleteOption(name).WithExpr(modalityFilter(string(modality), modelID))
	if _, err := s.milvus.client.Delete(ctx, deleteOpt); err != nil {
		return fmt.Errorf("failed to clear old prototypes: %w", err)
	}

	ids, modalities, models, labels, vectors := prototypesToColumns(modality, modelID, prototypes)
	insertOpt := milvusclient.NewColumnBasedInsertOption(name).
		WithVarcharColumn(FieldID, ids).
		WithVarcharColumn(FieldModality, modalities).
		WithVarcharColumn(FieldModelID, models).
		WithVarcharColumn(FieldLabel, labels).
		WithFloatVectorColumn(FieldVector, dim, vectors)
	if _, err := s.milvus.client.Insert(ctx, insertOpt); err != nil {
		return fmt.Errorf("failed to insert prototypes: %w", err)
	}
	logger.Info("Stored %d %s prototypes in %s", len(prototypes), modality, name)
	return nil
}

func prototypesToColumns(modality core.Modality, modelID string, prototypes []core.ConditionPrototype) (ids, modalities, models, labels []string, vectors [][]float32) {
	for _, p := range prototypes {
		ids = append(ids, rowID(string(modality), p.Label))
		modalities = append(modalities, string(modality))
		models = append(models, modelID)
		labels = append(labels, p.Label)
		vectors = append(vectors, p.Embedding)
	}
	return ids, modalities, models, labels, vectors
}

func rowsToPrototypes(modality core.Modality, labels []string, vectors [][]float32) []core.ConditionPrototype {
	out := make([]core.ConditionPrototype, 0, len(labels))
	for i, label := range labels {
		out = append(out, core.ConditionPrototype{Label: label, Embedding: vectors[i], Modality: modality})
	}
	return out
}

func asFloat32s(v interface{}) []float32 {
	switch vec := v.(type) {
	case entity.FloatVector:
		return []float32(vec)
	case []float32:
		return vec
	default:
		return nil
	}
}
