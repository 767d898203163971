package domain

// ParsedInvoice carries the business fields the parse worker managed to
// extract from the PDF text. Zero values mean "not found"; extraction
// misses are not errors.
type ParsedInvoice struct {
	Supplier string
	Amount   *float64
	Currency string
	DueDate  string
}
