package localstore

import (
	"context"
	"encoding/json"
)

// Settings is the on-device key-value store underneath the local data layer,
// the equivalent of the browser extension's local storage area. Values are
// JSON documents.
type Settings interface {
	// Get reads a key. ok is false when the key does not exist.
	Get(ctx context.Context, key string) (value json.RawMessage, ok bool, err error)
	// Set writes a key. value is marshaled to JSON.
	Set(ctx context.Context, key string, value interface{}) error
	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Keys lists every stored key.
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
