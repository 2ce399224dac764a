package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/janhstrom/mindreminder-sub000/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// classify maps driver errors onto the domain sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrTransport) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", op, domain.ErrConflict)
		case foreignKeyViolation:
			return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		// class 08 is connection exceptions, 57P0x operator intervention
		if len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:4] == "57P0") {
			return &domain.TransportError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		pgconn.SafeToRetry(err),
		pgconn.Timeout(err),
		errors.Is(err, context.DeadlineExceeded):
		return &domain.TransportError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
