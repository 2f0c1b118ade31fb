package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Connect dials the cluster and pings it once so misconfiguration fails at
// startup rather than on the first query.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// MongoStore adapts a Mongo database to the capability set. Documents get
// string uuid keys under _id. Subscriptions ride change streams: each event
// triggers an unordered refetch of the filtered set, so every delivery is a
// full snapshot.
//
// Mongo itself will serve a filter+sort without a matching index, so the
// adapter enforces the managed-store contract: ordered filtered queries
// check the index registry (seeded from the collection's real indexes on
// first use) and fail with ErrMissingIndex until ProvisionIndex has run.
type MongoStore struct {
	db      *mongo.Database
	log     *zap.SugaredLogger
	indexes *indexRegistry

	mu     sync.Mutex
	seeded map[string]bool // collections whose indexes were loaded
}

func NewMongoStore(db *mongo.Database, log *zap.SugaredLogger) *MongoStore {
	return &MongoStore{
		db:      db,
		log:     log,
		indexes: newIndexRegistry(),
		seeded:  make(map[string]bool),
	}
}

func (s *MongoStore) Get(ctx context.Context, collection, key string) (Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&raw)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return docFromBson(raw), nil
}

func (s *MongoStore) Query(ctx context.Context, collection string, filters []Filter, order *Order, limit int64) ([]Document, error) {
	if order != nil && len(filters) > 0 {
		if err := s.ensureIndexesLoaded(ctx, collection); err != nil {
			return nil, err
		}
		if !s.indexes.has(collection, queryIndexFields(filters, order)) {
			return nil, ErrMissingIndex
		}
	}
	opts := options.Find()
	if order != nil {
		dir := 1
		if order.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: order.Field, Value: dir}})
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.db.Collection(collection).Find(ctx, filtersToBson(filters), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Document{}
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, docFromBson(raw))
	}
	return out, cur.Err()
}

func (s *MongoStore) Subscribe(ctx context.Context, collection string, filters []Filter, onSnapshot func([]Document), onError func(error)) (func(), error) {
	// subscription lifetime is the caller's release call, not the setup ctx
	streamCtx, cancel := context.WithCancel(context.Background())

	cs, err := s.db.Collection(collection).Watch(streamCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return func() {}, err
	}

	initial, err := s.Query(ctx, collection, filters, nil, 0)
	if err != nil {
		_ = cs.Close(streamCtx)
		cancel()
		return func() {}, err
	}
	onSnapshot(initial)

	go func() {
		defer cs.Close(context.Background())
		for cs.Next(streamCtx) {
			docs, err := s.Query(streamCtx, collection, filters, nil, 0)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			onSnapshot(docs)
		}
		if err := cs.Err(); err != nil && streamCtx.Err() == nil {
			s.log.Errorw("change stream failed", "collection", collection, "err", err)
			if onError != nil {
				onError(err)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (s *MongoStore) Put(ctx context.Context, collection, key string, doc Document, merge bool) error {
	resolved := resolveTimestamps(doc, time.Now().UTC())
	col := s.db.Collection(collection)
	if merge {
		_, err := col.UpdateOne(ctx, bson.M{"_id": key},
			bson.M{"$set": bson.M(resolved)}, options.Update().SetUpsert(true))
		return err
	}
	_, err := col.ReplaceOne(ctx, bson.M{"_id": key}, bson.M(resolved), options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) Add(ctx context.Context, collection string, doc Document) (string, error) {
	key := uuid.NewString()
	resolved := resolveTimestamps(doc, time.Now().UTC())
	insert := make(bson.M, len(resolved)+1)
	for k, v := range resolved {
		insert[k] = v
	}
	insert["_id"] = key
	if _, err := s.db.Collection(collection).InsertOne(ctx, insert); err != nil {
		return "", err
	}
	return key, nil
}

// ProvisionIndex creates the composite index (leading fields ascending,
// ordering field descending), then seeds throwaway documents and runs the
// ordered probe query against them before cleaning up, so a success response
// means the index actually serves reads.
func (s *MongoStore) ProvisionIndex(ctx context.Context, collection string, fields ...string) error {
	if len(fields) < 2 {
		return fmt.Errorf("composite index needs at least two fields, got %d", len(fields))
	}
	keys := bson.D{}
	for i, f := range fields {
		dir := 1
		if i == len(fields)-1 {
			dir = -1
		}
		keys = append(keys, bson.E{Key: f, Value: dir})
	}
	col := s.db.Collection(collection)
	if _, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys}); err != nil {
		return err
	}

	probeKeys := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		probe := bson.M{"_id": "probe-" + uuid.NewString()}
		for _, f := range fields[:len(fields)-1] {
			probe[f] = "probe"
		}
		probe[fields[len(fields)-1]] = time.Now().UTC()
		if _, err := col.InsertOne(ctx, probe); err != nil {
			return err
		}
		probeKeys = append(probeKeys, probe["_id"].(string))
	}
	defer func() {
		_, _ = col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": probeKeys}})
	}()

	probeFilter := bson.M{fields[0]: "probe"}
	probeSort := bson.D{{Key: fields[len(fields)-1], Value: -1}}
	if err := col.FindOne(ctx, probeFilter, options.FindOne().SetSort(probeSort)).Err(); err != nil {
		return fmt.Errorf("index probe query: %w", err)
	}

	s.indexes.add(collection, fields)
	s.log.Infow("composite index provisioned", "collection", collection, "fields", fields)
	return nil
}

// ensureIndexesLoaded seeds the registry from the collection's real index
// list the first time an ordered query touches it, so indexes provisioned by
// a previous process are honored.
func (s *MongoStore) ensureIndexesLoaded(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded[collection] {
		return nil
	}
	raw, err := s.db.Collection(collection).Indexes().ListSpecifications(ctx)
	if err != nil {
		return err
	}
	for _, spec := range raw {
		var keys bson.D
		if err := bson.Unmarshal(spec.KeysDocument, &keys); err != nil {
			continue
		}
		if len(keys) < 2 {
			continue
		}
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, k.Key)
		}
		s.indexes.add(collection, fields)
	}
	s.seeded[collection] = true
	return nil
}

func filtersToBson(filters []Filter) bson.M {
	out := bson.M{}
	for _, f := range filters {
		// equality and array-contains share Mongo's match syntax
		out[f.Field] = f.Value
	}
	return out
}

// docFromBson converts a decoded document to the store's neutral shape:
// bson datetimes become time.Time, nested arrays/maps lose their primitive
// wrappers, and the key moves from _id to id.
func docFromBson(raw bson.M) Document {
	out := make(Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			if id, ok := v.(string); ok {
				out["id"] = id
			}
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
