package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig holds the connection settings for the MongoDB backend.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
	// Indexed lists, per bucket, the fields that get a secondary index.
	Indexed map[string][]string
}

// MongoStore maps each bucket to a collection and each key to _id.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects, pings and creates the configured indexes.
func NewMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB ping failed: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(cfg.Database)}
	if err := s.ensureIndexes(ctx, cfg.Indexed); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logg.Info("docstore", "Connected to MongoDB (uri anonymized)")
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context, indexed map[string][]string) error {
	for bucket, fields := range indexed {
		models := make([]mongo.IndexModel, 0, len(fields))
		for _, f := range fields {
			models = append(models, mongo.IndexModel{Keys: bson.D{{Key: f, Value: 1}}})
		}
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(bucket).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", bucket, err)
		}
	}
	return nil
}

// Upsert replaces the whole document, inserting it when absent.
func (s *MongoStore) Upsert(ctx context.Context, bucket, key string, doc json.RawMessage) error {
	if _, err := splitFields(doc); err != nil {
		return err
	}

	var m bson.M
	if err := bson.UnmarshalExtJSON(doc, false, &m); err != nil {
		return fmt.Errorf("docstore: encode document: %w", err)
	}
	delete(m, "_id")

	_, err := s.db.Collection(bucket).ReplaceOne(ctx, bson.M{"_id": key}, m, options.Replace().SetUpsert(true))
	if err != nil {
		logg.Error("docstore", "Failed to upsert document", err)
		return fmt.Errorf("docstore: upsert %s: %w", bucket, err)
	}
	return nil
}

// Lookup reads one document, projecting to paths when given.
func (s *MongoStore) Lookup(ctx context.Context, bucket, key string, paths ...string) (*LookupResult, error) {
	opts := options.FindOne()
	if len(paths) > 0 {
		proj := bson.D{}
		for _, p := range paths {
			proj = append(proj, bson.E{Key: p, Value: 1})
		}
		opts.SetProjection(proj)
	}

	var m bson.M
	err := s.db.Collection(bucket).FindOne(ctx, bson.M{"_id": key}, opts).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &LookupResult{Exists: false}, nil
		}
		logg.Error("docstore", "Failed to read document", err)
		return nil, fmt.Errorf("docstore: lookup %s: %w", bucket, err)
	}

	_, fields, err := fieldsFromBSON(m)
	if err != nil {
		return nil, err
	}
	return &LookupResult{Exists: true, Fields: fields}, nil
}

// Query runs an equality filter (or a full scan) sorted by _id.
func (s *MongoStore) Query(ctx context.Context, q Query) ([]Row, error) {
	filter := bson.M{}
	if q.Field != "" {
		filter[q.Field] = q.Equals
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(q.Bucket).Find(ctx, filter, opts)
	if err != nil {
		logg.Error("docstore", "Failed to query documents", err)
		return nil, fmt.Errorf("docstore: query %s: %w", q.Bucket, err)
	}
	defer cursor.Close(ctx)

	var rows []Row
	for cursor.Next(ctx) {
		var m bson.M
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("docstore: decode %s: %w", q.Bucket, err)
		}
		id, content, err := fieldsFromBSON(m)
		if err != nil {
			return nil, err
		}
		data, _, err := joinFields(content, nil)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{ID: id, Content: data})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", q.Bucket, err)
	}
	return rows, nil
}

// Mutate translates specs into one $push/$set update.
func (s *MongoStore) Mutate(ctx context.Context, bucket, key string, specs []MutationSpec, opts ...MutateOption) error {
	o := applyMutateOptions(opts)

	update, err := mongoUpdate(specs)
	if err != nil {
		return err
	}

	res, err := s.db.Collection(bucket).UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(o.create))
	if err != nil {
		logg.Error("docstore", "Failed to mutate document", err)
		return fmt.Errorf("docstore: mutate %s: %w", bucket, err)
	}
	if !o.create && res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() {
	if err := s.client.Disconnect(context.Background()); err != nil {
		logg.Error("docstore", "Error disconnecting from MongoDB", err)
		return
	}
	logg.Info("docstore", "MongoDB client disconnected")
}

func mongoUpdate(specs []MutationSpec) (bson.M, error) {
	push := bson.M{}
	set := bson.M{}
	pending := map[string][]interface{}{}

	for _, spec := range specs {
		v, err := valueFromJSON(spec.Value)
		if err != nil {
			return nil, err
		}
		switch spec.Op {
		case OpArrayAppend:
			pending[spec.Path] = append(pending[spec.Path], v)
		case OpReplace:
			set[spec.Path] = v
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownOp, spec.Op)
		}
	}
	for path, vals := range pending {
		push[path] = bson.M{"$each": vals}
	}

	update := bson.M{}
	if len(push) > 0 {
		update["$push"] = push
	}
	if len(set) > 0 {
		update["$set"] = set
	}
	return update, nil
}

// valueFromJSON decodes a JSON value into its BSON form.
func valueFromJSON(raw json.RawMessage) (interface{}, error) {
	wrapped := append(append([]byte(`{"v":`), raw...), '}')
	var m bson.M
	if err := bson.UnmarshalExtJSON(wrapped, false, &m); err != nil {
		return nil, fmt.Errorf("docstore: decode value: %w", err)
	}
	return m["v"], nil
}

// fieldsFromBSON splits a decoded document into its _id and JSON fields.
func fieldsFromBSON(m bson.M) (string, map[string]json.RawMessage, error) {
	id := ""
	if v, ok := m["_id"]; ok {
		id = fmt.Sprint(v)
		delete(m, "_id")
	}
	data, err := bson.MarshalExtJSON(m, false, false)
	if err != nil {
		return "", nil, fmt.Errorf("docstore: encode document: %w", err)
	}
	fields, err := splitFields(data)
	if err != nil {
		return "", nil, err
	}
	return id, fields, nil
}
