package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/advmus/invoicevault/internal/core/domain"
	"github.com/advmus/invoicevault/internal/core/ports"
)

type DedupDecisionKind int

const (
	DedupProceed DedupDecisionKind = iota
	DedupReturnExisting
	DedupRejectDuplicate
)

type DedupDecision struct {
	Kind     DedupDecisionKind
	Existing *domain.InvoiceRecord
}

const (
	defaultDedupWindow         = time.Hour
	defaultDedupCandidateLimit = 20
)

// DedupResolver decides whether an upload is an idempotent replay, a
// recent accidental duplicate, or genuinely new.
type DedupResolver struct {
	records        ports.RecordStore
	window         time.Duration
	candidateLimit int
	now            func() time.Time
}

func NewDedupResolver(records ports.RecordStore, window time.Duration, candidateLimit int) *DedupResolver {
	if window <= 0 {
		window = defaultDedupWindow
	}
	if candidateLimit <= 0 {
		candidateLimit = defaultDedupCandidateLimit
	}
	return &DedupResolver{
		records:        records,
		window:         window,
		candidateLimit: candidateLimit,
		now:            time.Now,
	}
}

// Resolve applies the dedup policy in strict priority order.
//
// An idempotency key is an affirmative retry-safe contract from the caller
// and matches unconditionally, returning the original record. A bare
// content-hash match is only circumstantial evidence of an accidental
// re-upload and is therefore time-boxed to the trailing window.
func (r *DedupResolver) Resolve(ctx context.Context, tenantID, idempotencyKey, contentHash string) (DedupDecision, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key != "" {
		matches, err := r.records.QueryByField(ctx, tenantID, domain.FieldIdempotencyKey, key, 1)
		if err != nil {
			return DedupDecision{}, fmt.Errorf("idempotency key lookup: %w", err)
		}
		if len(matches) > 0 {
			existing := matches[0]
			return DedupDecision{Kind: DedupReturnExisting, Existing: &existing}, nil
		}
	}

	// The candidate fetch is bounded: with more hash-matching records than
	// the limit, the true most-recent match can be missed. The limit is a
	// tunable policy parameter, not a correctness guarantee.
	candidates, err := r.records.QueryByField(ctx, tenantID, domain.FieldContentHash, contentHash, r.candidateLimit)
	if err != nil {
		return DedupDecision{}, fmt.Errorf("content hash lookup: %w", err)
	}

	cutoff := r.now().Add(-r.window)
	var latest *domain.InvoiceRecord
	for i := range candidates {
		candidate := &candidates[i]
		ts := candidate.RelevantTime()
		if ts.Before(cutoff) {
			continue
		}
		if latest == nil || ts.After(latest.RelevantTime()) {
			latest = candidate
		}
	}
	if latest != nil {
		return DedupDecision{Kind: DedupRejectDuplicate, Existing: latest}, nil
	}
	return DedupDecision{Kind: DedupProceed}, nil
}
