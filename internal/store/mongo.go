package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on a MongoDB database: one collection per
// document collection, string _id keys, change streams for subscriptions and
// multi-document transactions for batches.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore wraps an established MongoDB connection.
func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{client: client, db: db}
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	var raw bson.Raw
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Doc{}, ErrNotFound
		}
		return Doc{}, fmt.Errorf("error reading %s/%s: %w", collection, id, err)
	}
	return Doc{ID: id, raw: raw}, nil
}

func mongoFilter(q Query) bson.M {
	filter := bson.M{}
	for _, f := range q.Filters {
		// equality on an array field already means "contains" in MongoDB,
		// so both ops translate the same way
		filter[f.Field] = f.Value
	}
	return filter
}

func (s *MongoStore) Query(ctx context.Context, collection string, q Query) ([]Doc, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, mongoFilter(q))
	if err != nil {
		return nil, fmt.Errorf("error querying %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var docs []Doc
	for cursor.Next(ctx) {
		raw := make(bson.Raw, len(cursor.Current))
		copy(raw, cursor.Current)
		id, ok := raw.Lookup("_id").StringValueOK()
		if !ok {
			return nil, fmt.Errorf("error querying %s: document without string _id", collection)
		}
		docs = append(docs, Doc{ID: id, raw: raw})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error querying %s: %w", collection, err)
	}
	return docs, nil
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, data interface{}, merge bool) error {
	return s.set(ctx, s.db.Collection(collection), id, data, merge)
}

func (s *MongoStore) set(ctx context.Context, coll *mongo.Collection, id string, data interface{}, merge bool) error {
	m, err := toBsonM(data)
	if err != nil {
		return err
	}

	if merge {
		opts := options.Update().SetUpsert(true)
		_, err = coll.UpdateByID(ctx, id, bson.M{"$set": m}, opts)
	} else {
		opts := options.Replace().SetUpsert(true)
		_, err = coll.ReplaceOne(ctx, bson.M{"_id": id}, m, opts)
	}
	if err != nil {
		return fmt.Errorf("error writing %s/%s: %w", coll.Name(), id, err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, updates map[string]interface{}) error {
	return s.update(ctx, s.db.Collection(collection), id, updates)
}

func (s *MongoStore) update(ctx context.Context, coll *mongo.Collection, id string, updates map[string]interface{}) error {
	set := bson.M{}
	pull := bson.M{}
	for field, value := range updates {
		switch v := value.(type) {
		case ArrayRemove:
			pull[field] = bson.M{"$in": v.Values}
		default:
			set[field] = value
		}
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(pull) > 0 {
		update["$pull"] = pull
	}
	if len(update) == 0 {
		return nil
	}

	res, err := coll.UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("error updating %s/%s: %w", coll.Name(), id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type mongoBatch struct {
	store *MongoStore
	ops   []func(ctx context.Context) error
}

func (s *MongoStore) Batch() Batch {
	return &mongoBatch{store: s}
}

func (b *mongoBatch) Set(collection, id string, data interface{}, merge bool) {
	coll := b.store.db.Collection(collection)
	b.ops = append(b.ops, func(ctx context.Context) error {
		return b.store.set(ctx, coll, id, data, merge)
	})
}

func (b *mongoBatch) Update(collection, id string, updates map[string]interface{}) {
	coll := b.store.db.Collection(collection)
	b.ops = append(b.ops, func(ctx context.Context) error {
		return b.store.update(ctx, coll, id, updates)
	})
}

// Commit runs the queued writes inside one transaction; any failure rolls
// back the whole batch. Requires a replica-set deployment, like any other
// MongoDB transaction user.
func (b *mongoBatch) Commit(ctx context.Context) error {
	session, err := b.store.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start batch session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, op := range b.ops {
			if err := op(sc); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("batch commit failed: %w", err)
	}
	return nil
}

// Subscribe opens a change stream filtered to documents matching q and runs
// fn on every event. Nil-valued equality filters are not representable in a
// change-stream match, so they are skipped; subscribers over-fire instead of
// missing events, which the coarse cache invalidation tolerates.
func (s *MongoStore) Subscribe(collection string, q Query, fn func()) (func(), error) {
	match := bson.M{}
	for _, f := range q.Filters {
		if f.Value == nil {
			continue
		}
		match["fullDocument."+f.Field] = f.Value
	}

	pipeline := mongo.Pipeline{}
	if len(match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}

	ctx, cancel := context.WithCancel(context.Background())
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := s.db.Collection(collection).Watch(ctx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error subscribing to %s: %w", collection, err)
	}

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			fn()
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			log.Printf("change stream on %s ended: %v", collection, err)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}, nil
}
