package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/advmus/invoicevault/internal/core/domain"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func newTestResolver(records *recordStoreFake) *DedupResolver {
	resolver := NewDedupResolver(records, time.Hour, 20)
	resolver.now = fixedNow
	return resolver
}

func TestResolveIdempotencyKeyWinsRegardlessOfAge(t *testing.T) {
	records := newRecordStoreFake()
	old := fixedNow().Add(-72 * time.Hour)
	records.seed(domain.InvoiceRecord{
		TenantID:       "acme",
		InvoiceID:      "inv-1111-aaaa",
		IdempotencyKey: "req-42",
		ContentHash:    "hash-a",
		CreatedAt:      old,
		UpdatedAt:      old,
	})

	decision, err := newTestResolver(records).Resolve(context.Background(), "acme", "req-42", "entirely-different-hash")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if decision.Kind != DedupReturnExisting {
		t.Fatalf("expected return-existing, got %v", decision.Kind)
	}
	if decision.Existing.InvoiceID != "inv-1111-aaaa" {
		t.Fatalf("wrong existing record: %s", decision.Existing.InvoiceID)
	}
}

func TestResolveRecentContentHashRejects(t *testing.T) {
	records := newRecordStoreFake()
	recent := fixedNow().Add(-10 * time.Minute)
	records.seed(domain.InvoiceRecord{
		TenantID:    "acme",
		InvoiceID:   "inv-2222-bbbb",
		ContentHash: "hash-a",
		CreatedAt:   recent,
		UpdatedAt:   recent,
	})

	decision, err := newTestResolver(records).Resolve(context.Background(), "acme", "", "hash-a")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if decision.Kind != DedupRejectDuplicate {
		t.Fatalf("expected reject-duplicate, got %v", decision.Kind)
	}
	if decision.Existing.InvoiceID != "inv-2222-bbbb" {
		t.Fatalf("wrong existing record: %s", decision.Existing.InvoiceID)
	}
}

func TestResolvePicksLatestOfSeveralMatches(t *testing.T) {
	records := newRecordStoreFake()
	older := fixedNow().Add(-40 * time.Minute)
	newer := fixedNow().Add(-5 * time.Minute)
	records.seed(domain.InvoiceRecord{
		TenantID: "acme", InvoiceID: "inv-older-111", ContentHash: "hash-a",
		CreatedAt: older, UpdatedAt: older,
	})
	records.seed(domain.InvoiceRecord{
		TenantID: "acme", InvoiceID: "inv-newer-222", ContentHash: "hash-a",
		CreatedAt: newer, UpdatedAt: newer,
	})

	decision, err := newTestResolver(records).Resolve(context.Background(), "acme", "", "hash-a")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if decision.Kind != DedupRejectDuplicate {
		t.Fatalf("expected reject-duplicate, got %v", decision.Kind)
	}
	if decision.Existing.InvoiceID != "inv-newer-222" {
		t.Fatalf("latest match must win, got %s", decision.Existing.InvoiceID)
	}
}

func TestResolveStaleContentHashProceeds(t *testing.T) {
	records := newRecordStoreFake()
	stale := fixedNow().Add(-2 * time.Hour)
	records.seed(domain.InvoiceRecord{
		TenantID:    "acme",
		InvoiceID:   "inv-3333-cccc",
		ContentHash: "hash-a",
		CreatedAt:   stale,
		UpdatedAt:   stale,
	})

	decision, err := newTestResolver(records).Resolve(context.Background(), "acme", "", "hash-a")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if decision.Kind != DedupProceed {
		t.Fatalf("match outside the window must proceed, got %v", decision.Kind)
	}
}

func TestResolveUsesLatestTimestampForWindow(t *testing.T) {
	records := newRecordStoreFake()
	// Created long ago but touched recently: still inside the window.
	records.seed(domain.InvoiceRecord{
		TenantID:    "acme",
		InvoiceID:   "inv-4444-dddd",
		ContentHash: "hash-a",
		CreatedAt:   fixedNow().Add(-48 * time.Hour),
		UpdatedAt:   fixedNow().Add(-5 * time.Minute),
	})

	decision, err := newTestResolver(records).Resolve(context.Background(), "acme", "", "hash-a")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if decision.Kind != DedupRejectDuplicate {
		t.Fatalf("recently updated record is in-window, got %v", decision.Kind)
	}
}

func TestResolveNoMatchesProceeds(t *testing.T) {
	decision, err := newTestResolver(newRecordStoreFake()).Resolve(context.Background(), "acme", "req-1", "hash-z")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if decision.Kind != DedupProceed {
		t.Fatalf("expected proceed for fresh upload, got %v", decision.Kind)
	}
}
