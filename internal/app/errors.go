package app

import (
	"errors"
	"fmt"

	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/domain"
)

// classify passes domain errors through and maps store failures onto the
// domain taxonomy: exhausted retries are conflicts, anything else is internal.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrConflict):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrConflict, err)
	case errors.Is(err, docstore.ErrInvalidPath):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrInvalidArgument, err)
	case domain.CodeOf(err) != domain.CodeInternal || errors.Is(err, domain.ErrInternal):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrInternal, err)
	}
}
