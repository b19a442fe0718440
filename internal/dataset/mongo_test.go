package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hunterwarburton/medsage/internal/core"
)

func TestTextFilter(t *testing.T) {
	f := textFilter("chest pain", nil)
	assert.Equal(t, bson.M{"$search": "chest pain"}, f["$text"])
	_, hasType := f["type"]
	assert.False(t, hasType)

	f = textFilter("x", []string{"image"})
	assert.Equal(t, bson.M{"$in": []string{"image"}}, f["type"])
}

func TestScoredToResultsScalesToBest(t *testing.T) {
	docs := []scoredDoc{
		{SearchRecord: core.SearchRecord{ID: "a", Dataset: "diabetes", Type: core.RecordTabular, SearchText: "t"}, Score: 4},
		{SearchRecord: core.SearchRecord{ID: "b", Dataset: "stroke", Type: core.RecordTabular}, Score: 1},
	}
	out := scoredToResults(docs)
	assert.Len(t, out, 2)
	assert.InDelta(t, 1.0, out[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.25, out[1].RelevanceScore, 1e-9)
	assert.Equal(t, "tabular", out[0].Type)
	assert.Equal(t, "t", out[0].Content)
}

func TestMirrorDocFlattensRecord(t *testing.T) {
	raw, err := bson.Marshal(mirrorDoc{SearchRecord: core.SearchRecord{ID: "x1", SearchText: "hello"}})
	assert.NoError(t, err)
	var m bson.M
	assert.NoError(t, bson.Unmarshal(raw, &m))
	assert.Equal(t, "x1", m["_id"])
	assert.Equal(t, "hello", m["search_text"])
}
