package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"connectivity", &ConnectivityError{Op: "connect", Err: errors.New("refused")}, "CONN001"},
		{"wrapped connectivity", fmt.Errorf("insert: %w", &ConnectivityError{Op: "insert", Err: errors.New("reset")}), "CONN001"},
		{"schema", &SchemaMismatchError{Entity: EntityProduct, Missing: []string{"price"}}, "SCH001"},
		{"source", &SourceError{Entity: EntityUser, Err: errors.New("bad quote")}, "SRC001"},
		{"required", &ValidationRejection{Field: "name", Reason: ReasonRequired}, "VAL001"},
		{"invalid", &ValidationRejection{Field: "price", Value: "abc", Reason: ReasonInvalid}, "VAL002"},
		{"negative", &ValidationRejection{Field: "price", Value: "-5", Reason: ReasonNegative}, "VAL003"},
		{"not positive", &ValidationRejection{Field: "quantity", Value: "0", Reason: ReasonNotPositive}, "VAL003"},
		{"enum", &ValidationRejection{Field: "status", Value: "lost", Reason: ReasonEnum}, "VAL004"},
		{"reference", &UnresolvedReferenceError{Target: EntityOrder, Key: Key{KeyOrderNumber, "X"}}, "REF001"},
		{"duplicate", ErrDuplicate, "DUP001"},
		{"unique", &ConstraintViolation{Constraint: "unique", Err: errors.New("dup")}, "DB001"},
		{"foreign key", &ConstraintViolation{Constraint: "foreign_key", Err: errors.New("fk")}, "DB002"},
		{"check", &ConstraintViolation{Constraint: "check", Err: errors.New("chk")}, "DB003"},
		{"not null", &ConstraintViolation{Constraint: "not_null", Err: errors.New("nn")}, "DB003"},
		{"other insert", &ConstraintViolation{Err: errors.New("boom")}, "DB004"},
		{"unknown", errors.New("mystery"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(fmt.Errorf("wrap: %w", &ConnectivityError{Op: "insert", Err: errors.New("eof")})) {
		t.Error("connectivity error should be fatal")
	}
	for _, err := range []error{
		nil,
		context.Canceled,
		&SchemaMismatchError{Entity: EntityProduct},
		&ValidationRejection{Field: "name", Reason: ReasonRequired},
		&ConstraintViolation{Constraint: "unique"},
	} {
		if IsFatal(err) {
			t.Errorf("IsFatal(%v) = true, want false", err)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{
			&ValidationRejection{Line: 4, Field: "price", Value: "-5", Reason: ReasonNegative},
			`line 4: price "-5": must not be negative`,
		},
		{
			&ValidationRejection{Line: 3, Field: "name", Reason: ReasonRequired},
			"line 3: name: required field is empty",
		},
		{
			&SchemaMismatchError{Entity: EntityOrderItem, Missing: []string{"quantity", "unit_price"}},
			"order_items: missing required columns: quantity, unit_price",
		},
		{
			&UnresolvedReferenceError{Line: 7, Target: EntityProduct, Key: Key{KeySKU, "NOPE"}},
			"line 7: unresolved reference to products sku=NOPE",
		},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestConnectivityErrorUnwrap(t *testing.T) {
	err := &ConnectivityError{Op: "lookup", Err: context.DeadlineExceeded}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is should see the wrapped cause")
	}
}
