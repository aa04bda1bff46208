package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryStore is an in-process Store. It is the reference semantics for the
// MongoDB implementation and the backend for tests.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]bson.M
	subs        map[int]*memSubscription
	nextSubID   int

	// commits counts successful batch commits; test hook.
	commits int
}

type memSubscription struct {
	collection string
	query      Query
	fn         func()
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]bson.M),
		subs:        make(map[int]*memSubscription),
	}
}

// BatchCommits reports how many batches committed successfully so far.
func (s *MemoryStore) BatchCommits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *MemoryStore) coll(name string) map[string]bson.M {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]bson.M)
		s.collections[name] = c
	}
	return c
}

// toBsonM normalizes any value (struct or map) into bson.M via a marshal
// round trip, so stored documents look the same as they would in MongoDB.
func toBsonM(data interface{}) (bson.M, error) {
	raw, err := bson.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}
	delete(m, "_id")
	return m, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.coll(collection)[id]
	if !ok {
		return Doc{}, ErrNotFound
	}
	return NewDoc(id, doc)
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []Doc
	for id, body := range s.coll(collection) {
		if !matches(body, q) {
			continue
		}
		doc, err := NewDoc(id, body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data interface{}, merge bool) error {
	s.mu.Lock()
	err := s.applySet(collection, id, data, merge)
	subs := s.matchedSubs(collection, id)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	fire(subs)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, updates map[string]interface{}) error {
	s.mu.Lock()
	err := s.applyUpdate(collection, id, updates)
	subs := s.matchedSubs(collection, id)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	fire(subs)
	return nil
}

// applySet mutates state; caller holds the lock.
func (s *MemoryStore) applySet(collection, id string, data interface{}, merge bool) error {
	m, err := toBsonM(data)
	if err != nil {
		return err
	}

	c := s.coll(collection)
	if merge {
		if existing, ok := c[id]; ok {
			merged := bson.M{}
			for k, v := range existing {
				merged[k] = v
			}
			for k, v := range m {
				merged[k] = v
			}
			c[id] = merged
			return nil
		}
	}
	c[id] = m
	return nil
}

// applyUpdate mutates state; caller holds the lock.
func (s *MemoryStore) applyUpdate(collection, id string, updates map[string]interface{}) error {
	c := s.coll(collection)
	existing, ok := c[id]
	if !ok {
		return ErrNotFound
	}

	updated := bson.M{}
	for k, v := range existing {
		updated[k] = v
	}
	for field, value := range updates {
		switch v := value.(type) {
		case ArrayRemove:
			updated[field] = removeFromSlice(updated[field], v.Values)
		default:
			normalized, err := toBsonM(bson.M{"v": value})
			if err != nil {
				return err
			}
			setPath(updated, field, normalized["v"])
		}
	}
	c[id] = updated
	return nil
}

// setPath writes a value under a dotted field path, creating intermediate
// maps like Mongo's $set does. Non-map intermediates are replaced.
func setPath(doc bson.M, field string, value interface{}) {
	parts := strings.Split(field, ".")
	for len(parts) > 1 {
		child, ok := doc[parts[0]].(bson.M)
		if !ok {
			child = bson.M{}
			doc[parts[0]] = child
		}
		doc = child
		parts = parts[1:]
	}
	doc[parts[0]] = value
}

func removeFromSlice(field interface{}, values []interface{}) interface{} {
	current, ok := field.(bson.A)
	if !ok {
		return field
	}

	var kept bson.A
	for _, el := range current {
		removed := false
		for _, v := range values {
			if looseEqual(el, v) {
				removed = true
				break
			}
		}
		if !removed {
			kept = append(kept, el)
		}
	}
	if kept == nil {
		kept = bson.A{}
	}
	return kept
}

func matches(body bson.M, q Query) bool {
	for _, f := range q.Filters {
		value, present := body[f.Field]
		switch f.Op {
		case OpEqual:
			if f.Value == nil {
				if present && value != nil {
					return false
				}
				continue
			}
			if !looseEqual(value, f.Value) {
				return false
			}
		case OpArrayContains:
			arr, ok := value.(bson.A)
			if !ok {
				return false
			}
			found := false
			for _, el := range arr {
				if looseEqual(el, f.Value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// looseEqual compares two scalar values, tolerating the type drift the bson
// round trip introduces.
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	return reflect.DeepEqual(a, b)
}

// matchedSubs collects subscriptions interested in the document's current
// state; caller holds the lock.
func (s *MemoryStore) matchedSubs(collection, id string) []func() {
	body, ok := s.coll(collection)[id]
	var fns []func()
	for _, sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		if ok && matches(body, sub.query) {
			fns = append(fns, sub.fn)
		}
	}
	return fns
}

func fire(fns []func()) {
	for _, fn := range fns {
		go fn()
	}
}

func (s *MemoryStore) Subscribe(collection string, q Query, fn func()) (func(), error) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = &memSubscription{collection: collection, query: q, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}, nil
}

type memBatchOp struct {
	collection string
	id         string
	set        interface{}
	merge      bool
	updates    map[string]interface{}
}

type memBatch struct {
	store *MemoryStore
	ops   []memBatchOp
}

func (s *MemoryStore) Batch() Batch {
	return &memBatch{store: s}
}

func (b *memBatch) Set(collection, id string, data interface{}, merge bool) {
	b.ops = append(b.ops, memBatchOp{collection: collection, id: id, set: data, merge: merge})
}

func (b *memBatch) Update(collection, id string, updates map[string]interface{}) {
	b.ops = append(b.ops, memBatchOp{collection: collection, id: id, updates: updates})
}

// Commit applies every queued op or none: state is snapshotted up front and
// restored when any op fails.
func (b *memBatch) Commit(ctx context.Context) error {
	s := b.store
	s.mu.Lock()

	snapshot := make(map[string]map[string]bson.M, len(s.collections))
	for name, c := range s.collections {
		copied := make(map[string]bson.M, len(c))
		for id, body := range c {
			copied[id] = body
		}
		snapshot[name] = copied
	}

	var err error
	for _, op := range b.ops {
		if op.updates != nil {
			err = s.applyUpdate(op.collection, op.id, op.updates)
		} else {
			err = s.applySet(op.collection, op.id, op.set, op.merge)
		}
		if err != nil {
			break
		}
	}

	var fns []func()
	if err != nil {
		s.collections = snapshot
	} else {
		s.commits++
		seen := make(map[string]bool)
		for _, op := range b.ops {
			key := op.collection + "/" + op.id
			if seen[key] {
				continue
			}
			seen[key] = true
			fns = append(fns, s.matchedSubs(op.collection, op.id)...)
		}
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("batch commit failed: %w", err)
	}
	fire(fns)
	return nil
}
