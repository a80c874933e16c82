// Package ports declares the boundary interfaces the service depends on.
package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	// ObjectKey is the logical key of the artifact (e.g. videos/<id>.mp4).
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is the provider's handle for later retrieval/deletion.
	// localfs echoes the input key; gdrive returns the Drive fileId.
	ObjectKey string
	Size      int64
}

// StorageProvider mirrors render artifacts into secondary storage so they
// survive the local retention sweep, and deletes them when the sweep runs.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error
}
