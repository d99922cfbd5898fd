package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/jwalitptl/clinic-identity/internal/repository"
)

const (
	uniqueViolation    = pq.ErrorCode("23505")
	exclusionViolation = pq.ErrorCode("23P01")
)

// storeError maps driver failures onto the repository sentinels, keeping the
// original error in the chain.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", repository.ErrNotFound, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == uniqueViolation:
			return fmt.Errorf("%w: %s: %w", repository.ErrConflict, pqErr.Constraint, err)
		case pqErr.Code == exclusionViolation:
			return fmt.Errorf("%w: %w", repository.ErrOverlap, err)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			// connection exceptions and operator intervention (shutdown)
			return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) ||
		strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, err)
	}
	return err
}

func wrap(op string, err error) error {
	return fmt.Errorf("failed to %s: %w", op, storeError(err))
}
