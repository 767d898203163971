package domain

import (
	"strings"
	"testing"
	"time"
)

func TestValidateTenantID(t *testing.T) {
	valid := []string{"acme", "ACME-01", "a", "t_1", "  tenant-7  "}
	for _, raw := range valid {
		if _, err := ValidateTenantID(raw); err != nil {
			t.Fatalf("tenant %q should be valid, got %v", raw, err)
		}
	}

	invalid := []string{"", "-acme", "_x", "ten ant", "a/b", "..", strings.Repeat("a", 70)}
	for _, raw := range invalid {
		if _, err := ValidateTenantID(raw); !IsKind(err, ErrInvalidInput) {
			t.Fatalf("tenant %q should be rejected, got %v", raw, err)
		}
	}
}

func TestValidateInvoiceID(t *testing.T) {
	if _, err := ValidateInvoiceID("0123456789abcdef0123456789abcdef"); err != nil {
		t.Fatalf("uuid hex id should be valid, got %v", err)
	}
	for _, raw := range []string{"", "short", "has space 12345", "x/y/z-123456", "a.b.c.d.e.f.g.h"} {
		if _, err := ValidateInvoiceID(raw); !IsKind(err, ErrInvalidInput) {
			t.Fatalf("invoice id %q should be rejected, got %v", raw, err)
		}
	}
}

func TestApplyToFirstWriteWinsCreatedAt(t *testing.T) {
	original := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	later := original.Add(48 * time.Hour)

	rec := InvoiceRecord{TenantID: "acme", InvoiceID: "inv-0001-aaaa", CreatedAt: original, UpdatedAt: original}
	merged := RecordFields{CreatedAt: &later, UpdatedAt: later}.ApplyTo(rec)

	if !merged.CreatedAt.Equal(original) {
		t.Fatalf("created_at must keep the first write, got %v", merged.CreatedAt)
	}
	if !merged.UpdatedAt.Equal(later) {
		t.Fatalf("updated_at must be refreshed, got %v", merged.UpdatedAt)
	}
}

func TestApplyToLeavesNilFieldsUntouched(t *testing.T) {
	amount := 99.5
	rec := InvoiceRecord{
		Supplier: "ACME GmbH",
		Amount:   &amount,
		Currency: "EUR",
		Note:     "q1",
	}
	note := "q2"
	merged := RecordFields{Note: &note, UpdatedAt: time.Now()}.ApplyTo(rec)

	if merged.Supplier != "ACME GmbH" || merged.Currency != "EUR" {
		t.Fatalf("untouched fields changed: %+v", merged)
	}
	if merged.Amount == nil || *merged.Amount != amount {
		t.Fatalf("amount changed: %+v", merged.Amount)
	}
	if merged.Note != "q2" {
		t.Fatalf("note not applied: %q", merged.Note)
	}
}

func TestApplyToCopiesAmount(t *testing.T) {
	amount := 10.0
	merged := RecordFields{Amount: &amount, UpdatedAt: time.Now()}.ApplyTo(InvoiceRecord{})
	amount = 20.0
	if *merged.Amount != 10.0 {
		t.Fatalf("amount must be copied, not aliased: %v", *merged.Amount)
	}
}

func TestRelevantTimeTakesLaterTimestamp(t *testing.T) {
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	rec := InvoiceRecord{CreatedAt: created, UpdatedAt: updated}
	if !rec.RelevantTime().Equal(updated) {
		t.Fatalf("expected updated_at, got %v", rec.RelevantTime())
	}

	rec = InvoiceRecord{CreatedAt: updated, UpdatedAt: created}
	if !rec.RelevantTime().Equal(updated) {
		t.Fatalf("expected created_at when later, got %v", rec.RelevantTime())
	}
}

func TestParseStatus(t *testing.T) {
	if status, err := ParseStatus(" parsed "); err != nil || status != StatusParsed {
		t.Fatalf("expected parsed, got %q / %v", status, err)
	}
	if _, err := ParseStatus("ready"); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("unknown status must be invalid input, got %v", err)
	}
}
