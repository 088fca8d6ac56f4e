// Package storage abstracts the blob store holding ciphertext. Implementations
// must be durable on successful Put; Delete of a missing locator is a no-op.
package storage

import "context"

type Storage interface {
	Put(ctx context.Context, locator string, data []byte) error
	// Get returns common.ErrorNotFound when the locator does not resolve.
	Get(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
}
