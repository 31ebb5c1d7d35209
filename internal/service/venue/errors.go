package venue

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/venuebook/internal/domain"
	"github.com/kirinyoku/venuebook/internal/repository"
)

// repoErr maps repository sentinels onto the venue error taxonomy.
func repoErr(err error) error {
	switch {
	case domain.Kind(err) != "":
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	case errors.Is(err, repository.ErrForeignKey):
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, err)
	}
	return err
}
