package kvstore

import (
	"context"
	"errors"
	"fmt"
)

// Returned (wrapped) when the backing store could not answer a read or write.
var ErrStoreUnavailable = errors.New("kv store unavailable")

type KVStore interface {
	// Returns the empty string (and no error) if the path has never been set.
	Get(ctx context.Context, path string) (string, error)
	Set(ctx context.Context, path, val string) error
}

func unavailable(op, path string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", ErrStoreUnavailable, op, path, err)
}
