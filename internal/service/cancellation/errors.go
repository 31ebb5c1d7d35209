package cancellation

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/venuebook/internal/domain"
	"github.com/kirinyoku/venuebook/internal/repository"
)

// storeErr keeps business errors as they are and turns storage outages into
// domain.ErrServiceUnavailable.
func storeErr(op string, err error) error {
	if domain.Kind(err) == "" && errors.Is(err, repository.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrServiceUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// result is the metrics label of a cancellation outcome.
func result(err error) string {
	if err == nil {
		return "ok"
	}
	if k := domain.Kind(err); k != "" {
		return k
	}
	return "error"
}
