package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/taskhive/platform/internal/domain"
)

func TestSagaRunsAllStepsInOrder(t *testing.T) {
	var order []string
	steps := []step{
		{name: "a", run: func(context.Context) error { order = append(order, "a"); return nil }},
		{name: "b", run: func(context.Context) error { order = append(order, "b"); return nil }},
		{name: "c", run: func(context.Context) error { order = append(order, "c"); return nil }},
	}

	if err := runSaga(context.Background(), steps); err != nil {
		t.Fatalf("saga: %v", err)
	}
	if len(order) != 3 || order[0] != "a" || order[2] != "c" {
		t.Errorf("order = %v", order)
	}
}

func TestSagaUnwindsCompletedStepsInReverse(t *testing.T) {
	var undone []string
	boom := errors.New("migration failed")

	steps := []step{
		{
			name: "create-database",
			run:  func(context.Context) error { return nil },
			undo: func(context.Context) error { undone = append(undone, "create-database"); return nil },
		},
		{
			name: "create-role",
			run:  func(context.Context) error { return nil },
			undo: func(context.Context) error { undone = append(undone, "create-role"); return nil },
		},
		{
			name: "migrate",
			run:  func(context.Context) error { return boom },
			undo: func(context.Context) error { t.Error("failed step must not be undone"); return nil },
		},
	}

	err := runSaga(context.Background(), steps)
	if !errors.Is(err, domain.ErrProvisioning) {
		t.Fatalf("error = %v, want ErrProvisioning", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error should carry the original cause, got %v", err)
	}
	if len(undone) != 2 || undone[0] != "create-role" || undone[1] != "create-database" {
		t.Errorf("undone = %v, want reverse order", undone)
	}
}

func TestSagaUnwindFailureIsEscalated(t *testing.T) {
	boom := errors.New("grant failed")
	stuck := errors.New("drop database refused")

	steps := []step{
		{
			name: "create-database",
			run:  func(context.Context) error { return nil },
			undo: func(context.Context) error { return stuck },
		},
		{
			name: "grant",
			run:  func(context.Context) error { return boom },
		},
	}

	err := runSaga(context.Background(), steps)
	if !errors.Is(err, domain.ErrUnwindFailed) {
		t.Fatalf("error = %v, want ErrUnwindFailed", err)
	}
	if errors.Is(err, domain.ErrProvisioning) {
		t.Error("unwind failure must be distinct from a clean provisioning failure")
	}
	// Both the original and the unwind cause surface.
	if !errors.Is(err, boom) || !errors.Is(err, stuck) {
		t.Errorf("error should carry both causes, got %v", err)
	}
}

func TestSagaFirstStepFailureHasNothingToUnwind(t *testing.T) {
	boom := errors.New("create database failed")
	steps := []step{
		{name: "create-database", run: func(context.Context) error { return boom }},
	}

	err := runSaga(context.Background(), steps)
	if !errors.Is(err, domain.ErrProvisioning) || !errors.Is(err, boom) {
		t.Fatalf("error = %v", err)
	}
}
