package cerr

import (
	"errors"
	"fmt"

	"github.com/kazz187/urgentsync/pkg/storage"
)

// WrapStorageError classifies a failed storage call on target. A missing
// path is NotFound; anything else means the store itself is unreachable.
func WrapStorageError(op, target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return NewError(Unavailable, "storage unavailable", fmt.Errorf("failed to %s %s: %w", op, target, err))
}
