package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection names used by the data layer.
const (
	Users     = "users"
	Customers = "customers"
	Templates = "templates"
	Tags      = "tags"
)

// ErrNotFound is returned when a document id does not exist.
var ErrNotFound = errors.New("document not found")

// Op is a query comparison operator.
type Op string

const (
	// OpEqual matches documents whose field equals the value. A nil value
	// matches documents where the field is null (or absent).
	OpEqual Op = "=="
	// OpArrayContains matches documents whose array field contains the value.
	OpArrayContains Op = "array-contains"
)

// Filter is one field comparison of a query.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Query is an immutable conjunction of filters.
type Query struct {
	Filters []Filter
}

// Where returns a new query with the filter appended.
func (q Query) Where(field string, op Op, value interface{}) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return Query{Filters: filters}
}

// Where starts a new query with a single filter.
func Where(field string, op Op, value interface{}) Query {
	return Query{}.Where(field, op, value)
}

// Doc is a document read from a collection.
type Doc struct {
	ID  string
	raw bson.Raw
}

// NewDoc builds a Doc from an id and a value, marshaling the value so later
// Decode calls see a faithful copy.
func NewDoc(id string, data interface{}) (Doc, error) {
	raw, err := bson.Marshal(data)
	if err != nil {
		return Doc{}, fmt.Errorf("failed to encode document %s: %w", id, err)
	}
	return Doc{ID: id, raw: raw}, nil
}

// Decode unmarshals the document body into out.
func (d Doc) Decode(out interface{}) error {
	if err := bson.Unmarshal(d.raw, out); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", d.ID, err)
	}
	return nil
}

// ArrayRemove is an update value that removes the given elements from an
// array field, the counterpart of the document store's arrayRemove sentinel.
type ArrayRemove struct {
	Values []interface{}
}

// RemoveFromArray builds an ArrayRemove update value.
func RemoveFromArray(values ...interface{}) ArrayRemove {
	return ArrayRemove{Values: values}
}

// Batch accumulates writes that commit atomically: either every queued write
// is applied or none is.
type Batch interface {
	// Set queues a create-or-replace of a document. With merge, existing
	// fields not present in data are kept.
	Set(collection, id string, data interface{}, merge bool)
	// Update queues a field update of an existing document. Values may be
	// plain values or ArrayRemove.
	Update(collection, id string, updates map[string]interface{})
	// Commit applies the batch. Afterwards the batch must not be reused.
	Commit(ctx context.Context) error
}

// Store is the per-collection document API consumed by the data layer:
// keyed get/set/update, filtered queries, atomic batches and live
// subscriptions. Production runs on MongoDB; tests use the in-memory
// implementation.
type Store interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	Query(ctx context.Context, collection string, q Query) ([]Doc, error)
	Set(ctx context.Context, collection, id string, data interface{}, merge bool) error
	Update(ctx context.Context, collection, id string, updates map[string]interface{}) error
	Batch() Batch
	// Subscribe registers fn to run after any committed write touching a
	// document matched by q. The returned function cancels the
	// subscription; it is safe to call more than once.
	Subscribe(collection string, q Query, fn func()) (func(), error)
}
