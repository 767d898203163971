package pdfparse

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/advmus/invoicevault/internal/core/domain"
)

// Parser extracts invoice fields from PDF text content. Extraction is
// heuristic: real invoices come in every layout imaginable, so we pull
// what we can and leave the rest blank for manual patching.
type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(ctx context.Context, data io.ReaderAt, size int64) (domain.ParsedInvoice, error) {
	if err := ctx.Err(); err != nil {
		return domain.ParsedInvoice{}, err
	}

	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return domain.ParsedInvoice{}, domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return domain.ParsedInvoice{}, domain.WrapError(domain.ErrInvalidInput, "extract pdf text", err)
	}
	raw, err := io.ReadAll(textReader)
	if err != nil {
		return domain.ParsedInvoice{}, domain.WrapError(domain.ErrInvalidInput, "read pdf text", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return domain.ParsedInvoice{}, domain.WrapError(domain.ErrInvalidInput, "extract pdf text", fmt.Errorf("document contains no extractable text"))
	}

	return extractFields(string(raw)), nil
}

var (
	amountPattern   = regexp.MustCompile(`(?i)\b(?:total|amount\s+due|balance\s+due|grand\s+total)\s*:?\s*[^\d]{0,4}(\d{1,3}(?:[.,\s]\d{3})*(?:[.,]\d{2})?)`)
	currencyPattern = regexp.MustCompile(`\b(USD|EUR|GBP|CHF|SEK|NOK|DKK|PLN|CZK|RUB|JPY|CNY|CAD|AUD)\b`)
	dueDatePattern  = regexp.MustCompile(`(?i)(?:due\s+date|payment\s+due|due\s+by|due)\s*:?\s*(\d{4}-\d{2}-\d{2}|\d{2}[./]\d{2}[./]\d{4}|\d{2}/\d{2}/\d{4})`)
)

var dueDateLayouts = []string{"2006-01-02", "02.01.2006", "02/01/2006", "01/02/2006"}

// extractFields mines loosely structured invoice text. Supplier is taken
// as the first non-trivial line; totals, currency and due date via
// label-anchored patterns.
func extractFields(text string) domain.ParsedInvoice {
	var parsed domain.ParsedInvoice

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 3 || looksLikeLabel(line) {
			continue
		}
		parsed.Supplier = truncate(line, 120)
		break
	}

	if m := amountPattern.FindStringSubmatch(text); m != nil {
		if amount, ok := parseAmount(m[1]); ok {
			parsed.Amount = &amount
		}
	}
	if m := currencyPattern.FindStringSubmatch(text); m != nil {
		parsed.Currency = m[1]
	}
	if m := dueDatePattern.FindStringSubmatch(text); m != nil {
		for _, layout := range dueDateLayouts {
			if t, err := time.Parse(layout, m[1]); err == nil {
				parsed.DueDate = t.Format("2006-01-02")
				break
			}
		}
	}
	return parsed
}

func looksLikeLabel(line string) bool {
	lower := strings.ToLower(line)
	for _, prefix := range []string{"invoice", "page", "date", "bill to", "ship to"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// parseAmount normalizes "1 234,56", "1,234.56" and "1234.56" variants.
func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, " ", "")
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	if lastComma > lastDot {
		// Comma is the decimal separator; dots are thousands.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil || amount < 0 {
		return 0, false
	}
	return amount, true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
