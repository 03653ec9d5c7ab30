package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgconn"
	pgxconn "github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE for unique_violation.
const uniqueViolationCode = "23505"

// Constraint names the engine relies on for benign-conflict detection.
const (
	// ConstraintActiveAssignment is the partial unique index that guarantees a
	// lead has at most one active assignment.
	ConstraintActiveAssignment = "ux_assignments_active_lead"
	// ConstraintUnprocessedQueueEntry keeps enqueue idempotent per lead.
	ConstraintUnprocessedQueueEntry = "ux_waiting_queue_unprocessed_lead"
)

// sqlite reports the violated columns instead of the index name, so each
// constraint needs a second spelling for the sqlite-backed tests.
var sqliteColumnsByConstraint = map[string]string{
	ConstraintActiveAssignment:      "assignments.lead_id",
	ConstraintUnprocessedQueueEntry: "waiting_queue_entries.lead_id",
}

// IsUniqueViolation reports whether any error in the chain is a unique
// violation on the named constraint (any unique violation when the name is
// empty). Service layers wrap storage errors with messages that hide the
// cause, so the check must walk the chain rather than read the outermost
// message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgxconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == uniqueViolationCode &&
			(constraintName == "" || pgxErr.ConstraintName == constraintName)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode &&
			(constraintName == "" || pgErr.ConstraintName == constraintName)
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if !strings.Contains(msg, "duplicate key value") &&
			!strings.Contains(msg, "UNIQUE constraint failed") {
			continue
		}
		if constraintName == "" || strings.Contains(msg, constraintName) {
			return true
		}
		if columns, ok := sqliteColumnsByConstraint[constraintName]; ok && strings.Contains(msg, columns) {
			return true
		}
	}
	return false
}
