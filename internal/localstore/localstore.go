package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// localDataKey is the single settings key the signed-out data lives under.
const localDataKey = "localData"

// Record is a stored tag or template in its loose, mergeable form. Partial
// records are valid: a put merges fields into whatever is already stored
// under the same id.
type Record map[string]interface{}

// ID returns the record's id, or "" when absent.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Deleted reports whether the record carries a tombstone.
func (r Record) Deleted() bool {
	v, ok := r["deleted_datetime"]
	return ok && v != nil && v != ""
}

// Data is the persisted local schema: tags and templates keyed by id.
type Data struct {
	Tags      map[string]Record `json:"tags"`
	Templates map[string]Record `json:"templates"`
}

// PutParams carries records to merge into the local data.
type PutParams struct {
	Tags      []Record
	Templates []Record
}

// LocalStore is the durable store used while signed out. All writes go
// through one mutex-serialized read-merge-write cycle, so a later put always
// observes the fully merged result of an earlier one and reads never see a
// half-applied merge.
type LocalStore struct {
	kv Settings

	mu       sync.Mutex
	onChange func()
}

// New wraps the settings store.
func New(kv Settings) *LocalStore {
	return &LocalStore{kv: kv}
}

// OnChange registers a callback fired after every mutation, used to refresh
// derived template lists.
func (l *LocalStore) OnChange(fn func()) {
	l.onChange = fn
}

func (l *LocalStore) notifyChanged() {
	if l.onChange != nil {
		l.onChange()
	}
}

// Raw returns the stored data with defaults applied.
func (l *LocalStore) Raw(ctx context.Context) (Data, error) {
	data := Data{
		Tags:      map[string]Record{},
		Templates: map[string]Record{},
	}

	value, ok, err := l.kv.Get(ctx, localDataKey)
	if err != nil {
		return data, fmt.Errorf("error reading local data: %w", err)
	}
	if !ok {
		return data, nil
	}
	if err := json.Unmarshal(value, &data); err != nil {
		return data, fmt.Errorf("error decoding local data: %w", err)
	}
	if data.Tags == nil {
		data.Tags = map[string]Record{}
	}
	if data.Templates == nil {
		data.Templates = map[string]Record{}
	}
	return data, nil
}

func live(records map[string]Record) []Record {
	var out []Record
	for _, r := range records {
		if !r.Deleted() {
			out = append(out, r)
		}
	}
	return out
}

// Tags returns all non-deleted local tags.
func (l *LocalStore) Tags(ctx context.Context) ([]Record, error) {
	data, err := l.Raw(ctx)
	if err != nil {
		return nil, err
	}
	return live(data.Tags), nil
}

// Templates returns all non-deleted local templates.
func (l *LocalStore) Templates(ctx context.Context) ([]Record, error) {
	data, err := l.Raw(ctx)
	if err != nil {
		return nil, err
	}
	return live(data.Templates), nil
}

// Template returns one local template by id, nil when absent. Tombstoned
// records are returned too: single-record reads mirror the raw bucket.
func (l *LocalStore) Template(ctx context.Context, id string) (Record, error) {
	data, err := l.Raw(ctx)
	if err != nil {
		return nil, err
	}
	return data.Templates[id], nil
}

// Put merges the given records into local data by id, shallowly: fields
// present in the incoming record win, everything else is kept.
func (l *LocalStore) Put(ctx context.Context, params PutParams) error {
	l.mu.Lock()
	err := l.merge(ctx, params)
	l.mu.Unlock()

	if err != nil {
		return err
	}
	l.notifyChanged()
	return nil
}

func (l *LocalStore) merge(ctx context.Context, params PutParams) error {
	data, err := l.Raw(ctx)
	if err != nil {
		return err
	}

	mergeAll := func(bucket map[string]Record, records []Record) {
		for _, record := range records {
			id := record.ID()
			if id == "" {
				continue
			}
			merged := Record{}
			for k, v := range bucket[id] {
				merged[k] = v
			}
			for k, v := range record {
				merged[k] = v
			}
			bucket[id] = merged
		}
	}
	mergeAll(data.Tags, params.Tags)
	mergeAll(data.Templates, params.Templates)

	if err := l.kv.Set(ctx, localDataKey, data); err != nil {
		return fmt.Errorf("error writing local data: %w", err)
	}
	return nil
}

// Clear resets the local data to empty and signals the change.
func (l *LocalStore) Clear(ctx context.Context) error {
	l.mu.Lock()
	err := l.kv.Set(ctx, localDataKey, Data{
		Tags:      map[string]Record{},
		Templates: map[string]Record{},
	})
	l.mu.Unlock()

	if err != nil {
		return fmt.Errorf("error clearing local data: %w", err)
	}
	l.notifyChanged()
	return nil
}
