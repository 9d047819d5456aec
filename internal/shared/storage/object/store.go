package object

import (
	"context"
	"io"
)

// ObjectStore defines the contract for archiving and retrieving evaluation
// artifacts (stage output payloads, rendered report JSON).
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
