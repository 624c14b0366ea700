package db

import (
	stderrors "errors"
	"strings"

	pkgerrors "github.com/angelmondragon/inventory-backoffice/pkg/errors"
)

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraintName is provided, the helper looks for
// the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if constraintName != "" {
		return strings.Contains(err.Error(), constraintName)
	}
	if pkgerrors.Dump(err).PGFault == pkgerrors.FaultUniqueViolation {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsSerializationFailure reports whether the transaction lost a race with a
// concurrent one (serialization failure, deadlock, lock timeout, busy sqlite).
// Callers may retry.
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	if pkgerrors.Dump(err).PGFault.Transient() {
		return true
	}
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if strings.Contains(e.Error(), "database is locked") {
			return true
		}
	}
	return false
}
