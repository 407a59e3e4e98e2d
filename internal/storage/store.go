// Package storage keeps refund evidence in object storage.
package storage

import "context"

// ObjectStore writes and removes objects addressed by key.
type ObjectStore interface {
	// Put stores data under key and returns the object's public URL.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
