package source

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"civisync/core/storage"

	"github.com/minio/minio-go/v7"
)

// NewStorageSource fetches a CSV object from the bucket and returns a source
// over its rows. The object is read fully before iteration starts so that a
// half-read object never yields a truncated batch.
func NewStorageSource(ctx context.Context, client storage.Client, bucket, objectName string) (Source, error) {
	object, err := client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch import object %q: %w", objectName, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read import object %q: %w", objectName, err)
	}

	return NewCSVSource(bytes.NewReader(data))
}
