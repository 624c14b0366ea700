package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// StorageFault classifies the Postgres failures the stock guard reacts to.
type StorageFault string

const (
	FaultNone                 StorageFault = ""
	FaultUniqueViolation      StorageFault = "unique_violation"
	FaultCheckViolation       StorageFault = "check_violation"
	FaultSerializationFailure StorageFault = "serialization_failure"
	FaultDeadlock             StorageFault = "deadlock_detected"
	FaultLockNotAvailable     StorageFault = "lock_not_available"
	FaultOther                StorageFault = "other"
)

var faultsBySQLState = map[string]StorageFault{
	"23505": FaultUniqueViolation,
	"23514": FaultCheckViolation,
	"40001": FaultSerializationFailure,
	"40P01": FaultDeadlock,
	"55P03": FaultLockNotAvailable,
}

// Transient reports whether re-running the transaction may succeed.
func (f StorageFault) Transient() bool {
	switch f {
	case FaultSerializationFailure, FaultDeadlock, FaultLockNotAvailable:
		return true
	}
	return false
}

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string       `json:"pg_code,omitempty"`
	PGFault      StorageFault `json:"pg_fault,omitempty"`
	PGConstraint string       `json:"pg_constraint,omitempty"`
	PGTable      string       `json:"pg_table,omitempty"`
	PGColumn     string       `json:"pg_column,omitempty"`
	PGDetail     string       `json:"pg_detail,omitempty"`
	PGMessage    string       `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	}
	d.PGFault = ClassifySQLState(d.PGCode)
	return d
}

// ClassifySQLState maps a Postgres SQLSTATE onto a StorageFault.
func ClassifySQLState(code string) StorageFault {
	if code == "" {
		return FaultNone
	}
	if fault, ok := faultsBySQLState[code]; ok {
		return fault
	}
	return FaultOther
}
