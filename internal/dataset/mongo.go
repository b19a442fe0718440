package dataset

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/logger"
)

// mirrorDoc is the stored form of a record.
type mirrorDoc struct {
	core.SearchRecord `bson:",inline"`
	CreatedAt         time.Time `bson:"created_at"`
}

// scoredDoc is a text search hit.
type scoredDoc struct {
	core.SearchRecord `bson:",inline"`
	Score             float64 `bson:"score"`
}

// MongoMirror keeps a copy of the index in MongoDB for the external search
// process.
type MongoMirror struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoMirror connects to uri and selects database.collection.
func NewMongoMirror(ctx context.Context, uri, database, collection string) (*MongoMirror, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	logger.DatasetInfo("MongoDB connection established (%s.%s)", database, collection)
	return &MongoMirror{client: client, coll: client.Database(database).Collection(collection)}, nil
}

// Close disconnects the client.
func (m *MongoMirror) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the text index used by TextSearch plus the
// dataset/type lookup index.
func (m *MongoMirror) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "search_text", Value: "text"}, {Key: "snippet", Value: "text"}}},
		{Keys: bson.D{{Key: "dataset", Value: 1}, {Key: "type", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Replace clears the collection and inserts records, unordered.
func (m *MongoMirror) Replace(ctx context.Context, records []core.SearchRecord) error {
	if _, err := m.coll.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = mirrorDoc{SearchRecord: r, CreatedAt: now}
	}
	res, err := m.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("MongoDB insertion error: %w", err)
	}
	if err := m.EnsureIndexes(ctx); err != nil {
		logger.DatasetWarn("Index creation warning: %v", err)
	}
	logger.DatasetInfo("Inserted %d documents into MongoDB", len(res.InsertedIDs))
	return nil
}

// TextSearch runs a $text query and returns hits with scores scaled so the
// best hit is 1.
func (m *MongoMirror) TextSearch(ctx context.Context, query string, types []string, limit int) ([]core.SearchResult, error) {
	filter := textFilter(query, types)
	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	defer cur.Close(ctx)

	var docs []scoredDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}
	return scoredToResults(docs), nil
}

func textFilter(query string, types []string) bson.M {
	filter := bson.M{"$text": bson.M{"$search": query}}
	if len(types) > 0 {
		filter["type"] = bson.M{"$in": types}
	}
	return filter
}

func scoredToResults(docs []scoredDoc) []core.SearchResult {
	top := 0.0
	for _, d := range docs {
		top = max(top, d.Score)
	}
	if top == 0 {
		top = 1
	}
	out := make([]core.SearchResult, 0, len(docs))
	for _, d := range docs {
		out = append(out, core.SearchResult{
			ID:             d.ID,
			Dataset:        d.Dataset,
			Type:           string(d.Type),
			Content:        d.SearchText,
			Snippet:        d.Snippet,
			RelevanceScore: d.Score / top,
			FilePath:       d.FilePath,
			Metadata:       d.Metadata,
		})
	}
	return out
}
