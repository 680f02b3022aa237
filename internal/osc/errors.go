package osc

import (
	"fmt"

	"github.com/zeebo/errs"

	"github.com/nnnLik/a-osc/internal/dialect"
)

// Error classes. A failure in any stage carries exactly one of them.
var (
	// ConnectionError means no database connection could be acquired.
	ConnectionError = errs.Class("connection failure")
	// DuplicateObjectError means the audit table, a trigger or the shadow table already exists.
	DuplicateObjectError = errs.Class("duplicate object")
	// AlterationError means an alteration statement failed on the shadow table.
	AlterationError = errs.Class("alteration failure")
	// DriverError is any other database error.
	DriverError = errs.Class("driver error")
	// PlanError means the plan or the source table cannot be migrated.
	PlanError = errs.Class("invalid plan")
	// RecordError means an audit record could not be decoded.
	RecordError = errs.Class("malformed audit record")
)

// classify wraps a driver error, promoting already-exists errors to DuplicateObjectError.
func classify(d dialect.Dialect, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf(format+": %w", append(args, err)...)
	if d.IsDuplicateObject(err) {
		return DuplicateObjectError.Wrap(wrapped)
	}
	return DriverError.Wrap(wrapped)
}
