package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
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
		{code: CodeInvalidTransition, status: http.StatusUnprocessableEntity, publicMsg: "bag state does not allow this operation", detailsOK: true},
		{code: CodeTokenMismatch, status: http.StatusBadRequest, publicMsg: "handoff code does not match", retryable: true},
		{code: CodeTokenNotFound, status: http.StatusNotFound, publicMsg: "no active handoff code"},
		{code: CodeConcurrentClaim, status: http.StatusConflict, publicMsg: "job already claimed", detailsOK: true},
		{code: CodePaymentGateway, status: http.StatusBadGateway, publicMsg: "payment gateway unavailable", retryable: true},
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

func TestIsMatchesWrappedCodes(t *testing.T) {
	inner := New(CodeConcurrentClaim, "lost race")
	outer := fmt.Errorf("claim: %w", inner)
	if !Is(outer, CodeConcurrentClaim) {
		t.Fatalf("expected wrapped code to match")
	}
	if Is(outer, CodeTokenMismatch) {
		t.Fatalf("unexpected match for different code")
	}
	if Is(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestDumpExtractsDriverDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ledger_entries_one_capture", TableName: "ledger_entries"}
	d := Dump(Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "duplicate capture"))
	if d.Code != CodeConflict || d.HTTPStatus != http.StatusConflict {
		t.Fatalf("unexpected code metadata %+v", d)
	}
	if d.PGCode != "23505" || d.PGConstraint != "ledger_entries_one_capture" || d.PGTable != "ledger_entries" {
		t.Fatalf("pg detail missing: %+v", d)
	}
	if len(d.Chain) < 3 {
		t.Fatalf("expected full chain, got %v", d.Chain)
	}

	lite := Dump(fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}))
	if lite.SQLiteCode != int(sqlite3.ErrConstraintUnique) {
		t.Fatalf("sqlite code missing: %+v", lite)
	}
	if lite.Code != "" {
		t.Fatalf("untyped error should not carry a code, got %s", lite.Code)
	}
}
