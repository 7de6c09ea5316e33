package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert order: %w", &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "orders_source_invoice_key"})

	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, "orders_source_invoice_key"))
	require.False(t, IsUniqueViolation(err, "orders_number_key"))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestIsTransient(t *testing.T) {
	for _, code := range []string{CodeSerializationFailure, CodeDeadlockDetected, CodeLockNotAvailable, CodeQueryCanceled} {
		require.True(t, IsTransient(&pgconn.PgError{Code: code}), code)
	}
	require.False(t, IsTransient(&pgconn.PgError{Code: CodeUniqueViolation}))
	require.False(t, IsTransient(errors.New("network")))
}

func TestIsNoRows(t *testing.T) {
	require.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	require.False(t, IsNoRows(errors.New("other")))
}
