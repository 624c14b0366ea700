package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeInvalidReservationState, status: http.StatusUnprocessableEntity, publicMsg: "reservation is no longer active", detailsOK: true},
		{code: CodeReservationExpired, status: http.StatusGone, publicMsg: "reservation expired", detailsOK: true},
		{code: CodeConcurrentModification, status: http.StatusConflict, publicMsg: "stock changed concurrently, retry the request", retryable: true, detailsOK: true},
		{code: CodeStockItemNotFound, status: http.StatusNotFound, publicMsg: "stock item not found", detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	inner := New(CodeInsufficientStock, "not enough")
	wrapped := fmt.Errorf("reserve line 2: %w", inner)
	if !IsCode(wrapped, CodeInsufficientStock) {
		t.Fatalf("expected wrapped error to carry insufficient stock code")
	}
	if IsCode(wrapped, CodeConflict) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestDumpClassifiesPostgresFaults(t *testing.T) {
	wrapped := Wrap(CodeDependency, fmt.Errorf("update stock: %w", &pgconn.PgError{Code: "40001", TableName: "stock_items"}), "update stock")
	dump := Dump(wrapped)
	if dump.PGFault != FaultSerializationFailure || !dump.PGFault.Transient() {
		t.Fatalf("expected transient serialization fault, got %+v", dump)
	}
	if dump.PGTable != "stock_items" || dump.Code != CodeDependency {
		t.Fatalf("unexpected dump %+v", dump)
	}

	check := Dump(&pq.Error{Code: "23514", Constraint: "chk_stock_items_reserved"})
	if check.PGFault != FaultCheckViolation || check.PGFault.Transient() {
		t.Fatalf("expected permanent check violation, got %+v", check)
	}
	if ClassifySQLState("") != FaultNone || ClassifySQLState("42P01") != FaultOther {
		t.Fatalf("unexpected classification for empty or unknown codes")
	}
}
