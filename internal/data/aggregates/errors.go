package aggregates

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

var (
	ErrValidation = errors.New("invalid store input")
	// ErrConflict marks a lost claim fence or a write that raced another writer.
	ErrConflict = errors.New("store write conflict")
)

func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// pgConflictStates are SQLSTATEs a retry can clear.
var pgConflictStates = map[string]bool{
	"23505": true, // unique_violation
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// sqliteConflictMarkers match driver messages that carry no typed error.
var sqliteConflictMarkers = []string{
	"unique constraint failed",
	"database is locked",
	"database table is locked",
}

// MapError attaches a pipeline error code to a store failure. Coded errors
// are returned as is.
func MapError(op string, err error) error {
	if err == nil || pipelineerr.CodeOf(err) != "" {
		return err
	}
	return pipelineerr.Wrap(classify(err), op, err)
}

func classify(err error) pipelineerr.Code {
	if errors.Is(err, ErrValidation) {
		return pipelineerr.CodeValidation
	}
	if errors.Is(err, ErrConflict) {
		return pipelineerr.CodeStoreConflict
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pipelineerr.CodeNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		state := strings.TrimSpace(pgErr.Code)
		if pgConflictStates[state] {
			return pipelineerr.CodeStoreConflict
		}
		if state == "23503" { // foreign_key_violation
			return pipelineerr.CodeValidation
		}
		return pipelineerr.CodeInternal
	}
	msg := strings.ToLower(err.Error())
	for _, m := range sqliteConflictMarkers {
		if strings.Contains(msg, m) {
			return pipelineerr.CodeStoreConflict
		}
	}
	if strings.Contains(msg, "foreign key constraint failed") {
		return pipelineerr.CodeValidation
	}
	return pipelineerr.CodeInternal
}
