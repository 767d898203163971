package pdfparse

import "testing"

const sampleInvoiceText = `ACME Tools GmbH
Invoice No: 2026-0042
Bill To: Example Corp
Due Date: 2026-04-15
Subtotal: 1,000.00
Total: 1,234.56 EUR
`

func TestExtractFieldsFullInvoice(t *testing.T) {
	parsed := extractFields(sampleInvoiceText)

	if parsed.Supplier != "ACME Tools GmbH" {
		t.Fatalf("supplier = %q", parsed.Supplier)
	}
	if parsed.Amount == nil || *parsed.Amount != 1234.56 {
		t.Fatalf("amount = %v, want 1234.56", parsed.Amount)
	}
	if parsed.Currency != "EUR" {
		t.Fatalf("currency = %q", parsed.Currency)
	}
	if parsed.DueDate != "2026-04-15" {
		t.Fatalf("due date = %q", parsed.DueDate)
	}
}

func TestExtractFieldsSkipsLabelLinesForSupplier(t *testing.T) {
	parsed := extractFields("Invoice #42\nPage 1 of 2\nNordwind Logistics AB\nTotal: 50.00")
	if parsed.Supplier != "Nordwind Logistics AB" {
		t.Fatalf("supplier = %q", parsed.Supplier)
	}
}

func TestExtractFieldsEuropeanDecimalComma(t *testing.T) {
	parsed := extractFields("Lieferant AG\nGesamtbetrag\nAmount Due: 1.234,56\nDue: 15.04.2026")
	if parsed.Amount == nil || *parsed.Amount != 1234.56 {
		t.Fatalf("amount = %v, want 1234.56", parsed.Amount)
	}
	if parsed.DueDate != "2026-04-15" {
		t.Fatalf("due date = %q", parsed.DueDate)
	}
}

func TestExtractFieldsMissingDataStaysEmpty(t *testing.T) {
	parsed := extractFields("Some Supplier\nno structured data here")
	if parsed.Amount != nil || parsed.Currency != "" || parsed.DueDate != "" {
		t.Fatalf("missing fields must stay zero: %+v", parsed)
	}
}

func TestParseAmountVariants(t *testing.T) {
	cases := map[string]float64{
		"1234.56":  1234.56,
		"1,234.56": 1234.56,
		"1.234,56": 1234.56,
		"1 234,56": 1234.56,
		"99":       99,
	}
	for input, want := range cases {
		got, ok := parseAmount(input)
		if !ok || got != want {
			t.Fatalf("parseAmount(%q) = %v/%v, want %v", input, got, ok, want)
		}
	}
	if _, ok := parseAmount("not-a-number"); ok {
		t.Fatal("garbage must not parse")
	}
}
