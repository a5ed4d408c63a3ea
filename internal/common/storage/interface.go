package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a key does not exist in the bucket.
var ErrNotFound = errors.New("object not found")

// ObjectStorage reads challenge archives from a single bucket.
type ObjectStorage interface {
	// Open streams the object stored under key.
	// Caller must close the returned reader.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns the metadata of key, or ErrNotFound.
	Stat(ctx context.Context, key string) (ObjectStat, error)
}

// ObjectStat describes a stored object. ETag changes whenever the content does.
type ObjectStat struct {
	Key          string
	SizeBytes    int64
	ETag         string
	LastModified time.Time
}
