package mongodb

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// DefaultCollection is the collection version rows are stored in.
const DefaultCollection = "States_Contents"

// Store implements schemacontent.Store using MongoDB
type Store struct {
	collection *mongo.Collection
}

// New creates a store on the given collection of db. An empty name selects
// DefaultCollection.
func New(db *mongo.Database, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{collection: db.Collection(collection)}
}

func (s *Store) Insert(ctx context.Context, row *schemacontent.Row) error {
	if _, err := s.collection.InsertOne(ctx, toDocument(row)); err != nil {
		return s.handleMongoError("insert content", err)
	}
	return nil
}

func (s *Store) ClearLatest(ctx context.Context, appID, id uuid.UUID, belowVersion int64) error {
	filter := bson.D{
		{Key: fieldAppID, Value: appID.String()},
		{Key: fieldID, Value: id.String()},
		{Key: fieldVersion, Value: bson.D{{Key: "$lt", Value: belowVersion}}},
		{Key: fieldIsLatest, Value: true},
	}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: fieldIsLatest, Value: false}}}}

	if _, err := s.collection.UpdateMany(ctx, filter, update); err != nil {
		return s.handleMongoError("clear latest", err)
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, appID, id uuid.UUID, version int64, status schemacontent.Status, modified time.Time) error {
	filter := bson.D{{Key: fieldKey, Value: documentKey(appID, id, version)}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: fieldStatus, Value: string(status)},
		{Key: fieldLastModified, Value: modified.UTC()},
	}}}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return s.handleMongoError("set status", err)
	}
	if result.MatchedCount == 0 {
		return schemacontent.ErrContentNotFound
	}
	return nil
}

func (s *Store) Find(ctx context.Context, plan *schemacontent.Plan) ([]*schemacontent.Row, error) {
	filter, err := renderFilter(plan.Filter)
	if err != nil {
		return nil, schemacontent.NewStorageError("render query", err)
	}
	sort, err := renderSort(plan.Sort)
	if err != nil {
		return nil, schemacontent.NewStorageError("render sort", err)
	}

	opts := options.Find()
	if len(sort) > 0 {
		opts.SetSort(sort)
	}
	if plan.Skip > 0 {
		opts.SetSkip(int64(plan.Skip))
	}
	if plan.Take > 0 {
		opts.SetLimit(int64(plan.Take))
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, s.handleMongoError("find content", err)
	}
	defer cursor.Close(ctx)

	var rows []*schemacontent.Row
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, s.handleMongoError("decode content", err)
		}
		row, err := fromDocument(&doc)
		if err != nil {
			return nil, schemacontent.NewStorageError("decode content", err)
		}
		rows = append(rows, row)
	}
	if err := cursor.Err(); err != nil {
		return nil, s.handleMongoError("iterate content", err)
	}
	return rows, nil
}

func (s *Store) Count(ctx context.Context, plan *schemacontent.Plan) (int64, error) {
	filter, err := renderFilter(plan.Filter)
	if err != nil {
		return 0, schemacontent.NewStorageError("render count", err)
	}
	count, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, s.handleMongoError("count content", err)
	}
	return count, nil
}

func (s *Store) IDs(ctx context.Context, plan *schemacontent.Plan) ([]uuid.UUID, error) {
	filter, err := renderFilter(plan.Filter)
	if err != nil {
		return nil, schemacontent.NewStorageError("render ids", err)
	}
	values, err := s.collection.Distinct(ctx, fieldID, filter)
	if err != nil {
		return nil, s.handleMongoError("find content ids", err)
	}

	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		str, _ := v.(string)
		id, err := uuid.Parse(str)
		if err != nil {
			return nil, schemacontent.NewStorageError("decode content id", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EnsureIndexes creates each index on its own so an existing index with
// other options does not block the rest.
func (s *Store) EnsureIndexes(ctx context.Context, indexes []schemacontent.IndexSpec) error {
	for _, idx := range indexes {
		model, err := indexModel(idx)
		if err != nil {
			return schemacontent.NewStorageError("create index", err)
		}
		if _, err := s.collection.Indexes().CreateOne(ctx, model); err != nil && !isIndexExistsError(err) {
			return s.handleMongoError("create index "+idx.Name, err)
		}
	}
	return nil
}

func indexModel(idx schemacontent.IndexSpec) (mongo.IndexModel, error) {
	if len(idx.Keys) == 0 {
		return mongo.IndexModel{}, errors.Newf("index %s has no keys", idx.Name)
	}

	if idx.Text {
		field, ok := systemFields[idx.Keys[0].Column]
		if !ok {
			return mongo.IndexModel{}, errors.Newf("index %s: unknown column %q", idx.Name, idx.Keys[0].Column)
		}
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: "text"}},
			Options: options.Index().SetName(idx.Name).SetDefaultLanguage("none"),
		}, nil
	}

	// Every lookup is scoped to an app.
	keys := bson.D{{Key: fieldAppID, Value: 1}}
	for _, k := range idx.Keys {
		field, ok := systemFields[k.Column]
		if !ok {
			return mongo.IndexModel{}, errors.Newf("index %s: unknown column %q", idx.Name, k.Column)
		}
		dir := 1
		if k.Descending {
			dir = -1
		}
		keys = append(keys, bson.E{Key: field, Value: dir})
	}
	return mongo.IndexModel{Keys: keys, Options: options.Index().SetName(idx.Name)}, nil
}

func isIndexExistsError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && (cmdErr.Code == 85 || cmdErr.Code == 86) { // IndexOptionsConflict, IndexKeySpecsConflict
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}

func (s *Store) handleMongoError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		return schemacontent.ErrDuplicateVersion
	}

	var selectionErr topology.ServerSelectionError
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) || errors.As(err, &selectionErr) {
		return schemacontent.NewStorageUnavailableError(operation, err)
	}
	return schemacontent.NewStorageError(operation, err)
}
