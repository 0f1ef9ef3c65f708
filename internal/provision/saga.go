package provision

import (
	"context"
	"fmt"

	"github.com/taskhive/platform/internal/domain"
)

// step is one forward action of the provisioning sequence paired with its
// compensating undo. Undo must be idempotent: it can run against a state
// where the forward action only partially applied.
type step struct {
	name string
	run  func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// runSaga executes steps in order. When a step fails, the undo actions of
// every previously completed step run in reverse order. The returned error
// wraps domain.ErrProvisioning on a clean unwind, or domain.ErrUnwindFailed
// carrying both causes when compensation itself failed.
func runSaga(ctx context.Context, steps []step) error {
	for i, s := range steps {
		if err := s.run(ctx); err != nil {
			cause := fmt.Errorf("step %s: %w", s.name, err)
			if undoErr := unwind(ctx, steps[:i]); undoErr != nil {
				return fmt.Errorf("%w: %w (unwind: %w)", domain.ErrUnwindFailed, cause, undoErr)
			}
			return fmt.Errorf("%w: %w", domain.ErrProvisioning, cause)
		}
	}
	return nil
}

// unwind runs the undo actions of completed steps newest-first, collecting
// every failure rather than stopping at the first.
func unwind(ctx context.Context, completed []step) error {
	var errs []error
	for i := len(completed) - 1; i >= 0; i-- {
		s := completed[i]
		if s.undo == nil {
			continue
		}
		if err := s.undo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("undo %s: %w", s.name, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	err := errs[0]
	for _, e := range errs[1:] {
		err = fmt.Errorf("%w; %w", err, e)
	}
	return err
}
