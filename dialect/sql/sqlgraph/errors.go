package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/syssam/nodestore"
)

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return nodestore.IsConstraintError(err) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate guid on a plain insert.
func IsUniqueConstraintError(err error) bool {
	return matches(err, []string{pgUniqueViolation}, []uint16{mysqlDuplicateEntry},
		"Error 1062",                 // MySQL (string fallback)
		"violates unique constraint", // Postgres (string fallback)
		"UNIQUE constraint failed",   // SQLite
		"PRIMARY KEY constraint failed",
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	return matches(err, []string{pgForeignKeyViolation}, []uint16{mysqlForeignKeyParent, mysqlForeignKeyChild},
		"Error 1451",
		"Error 1452",
		"violates foreign key constraint",
		"FOREIGN KEY constraint failed",
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	return matches(err, []string{pgCheckViolation}, []uint16{mysqlCheckConstraintViolate},
		"Error 3819",
		"violates check constraint",
		"CHECK constraint failed",
	)
}

// matches checks the typed driver errors first and falls back to message
// matching for drivers without one (SQLite).
func matches(err error, pgCodes []string, mysqlNumbers []uint16, fallback ...string) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		for _, c := range pgCodes {
			if string(pqErr.Code) == c {
				return true
			}
		}
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		for _, n := range mysqlNumbers {
			if myErr.Number == n {
				return true
			}
		}
		return false
	}
	return containsAny(err.Error(), fallback...)
}

// wrapConstraint converts a driver constraint violation into a
// nodestore.ConstraintError and leaves other errors untouched.
func wrapConstraint(err error) error {
	if err == nil || nodestore.IsConstraintError(err) || !IsConstraintError(err) {
		return err
	}
	return nodestore.NewConstraintError(err.Error(), err)
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
