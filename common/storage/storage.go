package storage

import (
	"context"
	"io"
)

// StorageService is the blob store the batch writer mirrors flushed
// archives to. Implementations must be safe for concurrent use.
type StorageService interface {
	// Upload writes content under objectName and returns the object name.
	Upload(ctx context.Context, bucket, objectName string, content []byte, contentType string) (string, error)

	// StreamUpload writes from a reader, for archives too large to hold
	// in memory.
	StreamUpload(ctx context.Context, bucket, objectName string, reader io.Reader, contentType string) (string, error)

	// Download fetches an object, used to re-read mirrored batches.
	Download(ctx context.Context, bucket, objectName string) ([]byte, error)
}
