package storage

import "context"

// FileStore holds image payloads. Put returns the reference recorded in a
// message; Delete with an unknown reference is not an error.
type FileStore interface {
	Put(ctx context.Context, owner, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
	URL(ctx context.Context, ref string) (string, error)
}
