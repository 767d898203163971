package domain

import (
	"errors"
	"testing"
)

func TestValidateTransitionHappyPath(t *testing.T) {
	steps := []struct {
		from, to InvoiceStatus
	}{
		{StatusUploaded, StatusProcessing},
		{StatusProcessing, StatusParsed},
		{StatusProcessing, StatusFailed},
	}
	for _, step := range steps {
		if err := ValidateTransition(step.from, step.to); err != nil {
			t.Fatalf("transition %s -> %s should be legal, got %v", step.from, step.to, err)
		}
	}
}

func TestValidateTransitionSameStatusIsNoOp(t *testing.T) {
	for _, status := range []InvoiceStatus{StatusUploaded, StatusProcessing, StatusParsed, StatusFailed} {
		if err := ValidateTransition(status, status); err != nil {
			t.Fatalf("re-setting %s should be an idempotent no-op, got %v", status, err)
		}
	}
}

func TestValidateTransitionRejectsIllegalMoves(t *testing.T) {
	illegal := []struct {
		from, to InvoiceStatus
	}{
		{StatusUploaded, StatusParsed},
		{StatusUploaded, StatusFailed},
		{StatusProcessing, StatusUploaded},
		{StatusParsed, StatusProcessing},
		{StatusParsed, StatusFailed},
		{StatusFailed, StatusUploaded},
		{StatusFailed, StatusParsed},
	}
	for _, step := range illegal {
		err := ValidateTransition(step.from, step.to)
		if err == nil {
			t.Fatalf("transition %s -> %s must be rejected", step.from, step.to)
		}
		if !IsKind(err, ErrConflict) {
			t.Fatalf("transition error must carry the conflict kind, got %v", err)
		}
		var transition *TransitionError
		if !errors.As(err, &transition) {
			t.Fatalf("expected *TransitionError, got %T", err)
		}
		if transition.From != step.from || transition.To != step.to {
			t.Fatalf("error does not describe the attempted move: %+v", transition)
		}
	}
}

func TestLegalNextStatesTerminalsAreEmpty(t *testing.T) {
	if next := LegalNextStates(StatusParsed); len(next) != 0 {
		t.Fatalf("parsed is terminal, got next states %v", next)
	}
	if next := LegalNextStates(StatusFailed); len(next) != 0 {
		t.Fatalf("failed is terminal, got next states %v", next)
	}
}

func TestLegalNextStatesReturnsCopy(t *testing.T) {
	first := LegalNextStates(StatusProcessing)
	if len(first) == 0 {
		t.Fatal("processing must have next states")
	}
	first[0] = "mutated"
	second := LegalNextStates(StatusProcessing)
	if second[0] == "mutated" {
		t.Fatal("LegalNextStates must not expose the internal table")
	}
}
