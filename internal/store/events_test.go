package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestSwapFailureClassifiesStatementErrors(t *testing.T) {
	raced := fmt.Errorf("refuse review siblings: %w", &pgconn.PgError{Code: "40001"})
	if !errors.Is(swapFailure(raced), ErrConflict) {
		t.Fatal("serialization failure at a statement must map to ErrConflict")
	}

	deadlocked := fmt.Errorf("promote candidate: %w", &pgconn.PgError{Code: "40P01"})
	if !errors.Is(swapFailure(deadlocked), ErrConflict) {
		t.Fatal("deadlock must map to ErrConflict")
	}

	plain := fmt.Errorf("load candidate row: %w", errors.New("connection reset"))
	if errors.Is(swapFailure(plain), ErrConflict) {
		t.Fatal("ordinary errors must not be mistaken for conflicts")
	}
	if swapFailure(plain).Error() != plain.Error() {
		t.Fatal("ordinary errors must keep their context")
	}
}
