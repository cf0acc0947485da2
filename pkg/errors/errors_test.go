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
		{code: CodeEmptyCart, status: http.StatusBadRequest, publicMsg: "cart is empty"},
		{code: CodeUnavailable, status: http.StatusNotFound, publicMsg: "product unavailable", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
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

func TestIsMatchesWrappedCode(t *testing.T) {
	inner := New(CodeEmptyCart, "no items")
	outer := fmt.Errorf("submit: %w", inner)
	if !Is(outer, CodeEmptyCart) {
		t.Fatalf("expected wrapped code to match")
	}
	if Is(outer, CodeNotFound) {
		t.Fatalf("unexpected match for other code")
	}
	if Is(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("untyped errors carry no code")
	}
}

func TestLogFieldsCollectsChain(t *testing.T) {
	cause := stdErrors.New("connection reset")
	fields := LogFields(Wrap(CodeDependency, cause, "update cart status"))
	if fields["error_code"] != string(CodeDependency) {
		t.Fatalf("expected dependency code, got %v", fields["error_code"])
	}
	chain, _ := fields["error_chain"].([]string)
	if len(chain) != 1 || chain[0] != "*errors.errorString: connection reset" {
		t.Fatalf("unexpected chain %v", chain)
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatal("pg fields must be omitted without a postgres error")
	}
	if LogFields(nil) != nil {
		t.Fatal("nil error yields no fields")
	}
}

func TestLogFieldsReadsPostgresErrors(t *testing.T) {
	pgxErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_carts_user_active", TableName: "carts"}
	fields := LogFields(fmt.Errorf("insert cart: %w", pgxErr))
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "ux_carts_user_active" || fields["pg_table"] != "carts" {
		t.Fatalf("unexpected pgx fields %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatal("empty pg fields must be omitted")
	}

	pqErr := &pq.Error{Code: "23503", Constraint: "cart_items_product_id_fkey"}
	fields = LogFields(Wrap(CodeConflict, pqErr, "add item"))
	if fields["pg_code"] != "23503" || fields["pg_constraint"] != "cart_items_product_id_fkey" {
		t.Fatalf("unexpected pq fields %v", fields)
	}
}

func TestIsSearchesNestedCodes(t *testing.T) {
	inner := New(CodeNotFound, "cart missing")
	outer := Wrap(CodeDependency, fmt.Errorf("load: %w", inner), "submit cart")
	if !Is(outer, CodeNotFound) || !Is(outer, CodeDependency) {
		t.Fatal("expected both codes in the chain")
	}
	if Is(outer, CodeConflict) {
		t.Fatal("unexpected conflict match")
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(New(CodeValidation, "bad")) {
		t.Fatal("validation errors are final")
	}
	if !Retryable(Wrap(CodeDependency, stdErrors.New("timeout"), "rates")) {
		t.Fatal("dependency errors are retryable")
	}
	if !Retryable(stdErrors.New("plain")) {
		t.Fatal("untyped errors are treated as internal")
	}
	if got := Newf(CodeNotFound, "budget %d", 7).Message(); got != "budget 7" {
		t.Fatalf("unexpected message %q", got)
	}
}
