package postgres

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

var (
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")
	ErrMigrationFailed  = errors.New("postgres: migration failed")
)

// SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeAdminShutdown       = "57P01"
	codeCannotConnectNow    = "57P03"
	codeTooManyConnections  = "53300"
	classConnectionFailure  = "08"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique constraint violation anywhere in the chain.
func IsUniqueViolation(err error) bool { return pgCode(err) == codeUniqueViolation }

// IsForeignKeyViolation reports a foreign key violation anywhere in the chain.
func IsForeignKeyViolation(err error) bool { return pgCode(err) == codeForeignKeyViolation }

func IsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// IsConnectionError reports failures where the database could not be
// reached or dropped the session, as opposed to a rejected statement.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionClosed) || pgconn.Timeout(err) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	if code := pgCode(err); code != "" {
		switch code {
		case codeAdminShutdown, codeCannotConnectNow, codeTooManyConnections:
			return true
		}
		return strings.HasPrefix(code, classConnectionFailure)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// storageErr classifies a driver error. Connection-class failures become
// shared.ErrStorageUnavailable; domain errors pass through untouched.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	if IsConnectionError(err) {
		return shared.WrapError("storage", op, shared.ErrStorageUnavailable, "storage temporarily unavailable", err)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
