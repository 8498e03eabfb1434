// Package kv defines the flat string-keyed store the persistence
// adapter runs on, plus the sqlite and in-memory backends.
package kv

import "context"

// Store is the injectable key-value contract. Get returns ok=false
// when the key is absent; absence is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
