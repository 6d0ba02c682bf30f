package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// StorageClient is the process-wide mirror target. It stays nil when no
// bucket is configured and callers must check before use.
var StorageClient StorageService

type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
}

// GCSStorage implements StorageService on Google Cloud Storage.
type GCSStorage struct {
	client *storage.Client
	config GCSConfig
}

// NewGCSStorage creates a GCS-backed storage service. When no credentials
// file is configured the client falls back to application default
// credentials.
func NewGCSStorage(ctx context.Context, config GCSConfig) (StorageService, error) {
	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &GCSStorage{
		config: config,
		client: client,
	}, nil
}

func SetStorageClient(svc StorageService) error {
	if svc == nil {
		return errors.New("storage client is nil")
	}
	StorageClient = svc
	return nil
}

func (g *GCSStorage) Upload(ctx context.Context, bucket, objectName string, content []byte, contentType string) (string, error) {
	return g.StreamUpload(ctx, bucket, objectName, bytes.NewReader(content), contentType)
}

func (g *GCSStorage) StreamUpload(ctx context.Context, bucket, objectName string, reader io.Reader, contentType string) (string, error) {
	wc := g.client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := io.Copy(wc, reader); err != nil {
		return "", fmt.Errorf("upload object %s: %w", objectName, err)
	}

	// The write is not committed until Close returns nil.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("commit object %s: %w", objectName, err)
	}

	return objectName, nil
}

func (g *GCSStorage) Download(ctx context.Context, bucket, objectName string) ([]byte, error) {
	rc, err := g.client.Bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %s in bucket %s: %w", objectName, bucket, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object %s in bucket %s: %w", objectName, bucket, err)
	}
	return data, nil
}
