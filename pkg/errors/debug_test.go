package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpReadsPgxErrorFields(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23502",
		Message:        "null value in column violates not-null constraint",
		TableName:      "monthly_payments",
		ColumnName:     "source_id",
		ConstraintName: "monthly_payments_source_id_not_null",
	}
	err := fmt.Errorf("record payment: %w", Wrap(CodeInternal, pgErr, "insert failed"))

	d := Dump(err)
	if d.Code != CodeInternal {
		t.Fatalf("expected %s, got %s", CodeInternal, d.Code)
	}
	if d.PGCode != "23502" || d.PGTable != "monthly_payments" || d.PGColumn != "source_id" {
		t.Fatalf("unexpected pg fields: %+v", d)
	}
	if d.PGConstraint != "monthly_payments_source_id_not_null" {
		t.Fatalf("expected constraint, got %q", d.PGConstraint)
	}
	if len(d.Chain) < 3 {
		t.Fatalf("expected full chain, got %v", d.Chain)
	}
}

func TestDumpReadsPqErrorFields(t *testing.T) {
	err := fmt.Errorf("upsert account: %w", &pq.Error{
		Code:    "23505",
		Message: "duplicate key value",
		Table:   "owner_bank_accounts",
		Column:  "dojang_code",
	})

	d := Dump(err)
	if d.PGCode != "23505" || d.PGTable != "owner_bank_accounts" || d.PGColumn != "dojang_code" {
		t.Fatalf("unexpected pg fields: %+v", d)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || d.Chain != nil {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
