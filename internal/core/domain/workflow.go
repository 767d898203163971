package domain

// allowedTransitions is the workflow transition table. Parsed and failed
// are terminal: no reopen, no skip, no revert.
var allowedTransitions = map[InvoiceStatus][]InvoiceStatus{
	StatusUploaded:   {StatusProcessing},
	StatusProcessing: {StatusParsed, StatusFailed},
	StatusParsed:     {},
	StatusFailed:     {},
}

// LegalNextStates returns the states reachable from current. The returned
// slice is a copy.
func LegalNextStates(current InvoiceStatus) []InvoiceStatus {
	next, ok := allowedTransitions[current]
	if !ok {
		return nil
	}
	out := make([]InvoiceStatus, len(next))
	copy(out, next)
	return out
}

// ValidateTransition checks a requested status change against the
// transition table. Setting the current status again is an idempotent
// no-op and passes.
func ValidateTransition(current, requested InvoiceStatus) error {
	if requested == current {
		return nil
	}
	for _, next := range allowedTransitions[current] {
		if next == requested {
			return nil
		}
	}
	return &TransitionError{
		From:    current,
		To:      requested,
		Allowed: LegalNextStates(current),
	}
}
