package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kampus-erp/kampus/internal/shared"
)

// SQLSTATE codes with a fixed meaning for the identity core.
const (
	codeInsufficientPrivilege = "42501"
	codeInfiniteRecursion     = "42P17"
	codeSerializationFailure  = "40001"
	codeDeadlockDetected      = "40P01"
)

// Classify maps a pgx error onto the shared taxonomy. The returned error wraps
// both the class sentinel and the original error; nil stays nil and errors
// that fit no class are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", shared.ErrNotFound, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeInsufficientPrivilege:
			return fmt.Errorf("%w: %w", shared.ErrPermissionDenied, err)
		case pgErr.Code == codeInfiniteRecursion:
			return fmt.Errorf("%w: %w", shared.ErrStructuralQuery, err)
		case pgErr.Code == codeSerializationFailure, pgErr.Code == codeDeadlockDetected:
			return fmt.Errorf("%w: %w", shared.ErrTransient, err)
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"),  // insufficient resources
			strings.HasPrefix(pgErr.Code, "57P"): // operator intervention
			return fmt.Errorf("%w: %w", shared.ErrTransient, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", shared.ErrTransient, err)
	}
	return err
}
