package httpadapter

import (
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/advmus/invoicevault/internal/core/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (rt *Router) exportInvoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}
	tenantID, ok := rt.tenant(w, r)
	if !ok {
		return
	}

	records, err := rt.directory.List(r.Context(), tenantID, limitParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	workbook, err := buildWorkbook(records)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer workbook.Close()

	rt.metrics.RecordExport(rt.service, len(records))

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_ = workbook.Write(w)
}

var exportColumns = []string{
	"Invoice ID", "Status", "Supplier", "Amount", "Currency", "Due Date",
	"Original Filename", "Size (bytes)", "Note", "Created At", "Updated At",
}

func buildWorkbook(records []domain.InvoiceRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Invoices"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	header := make([]any, len(exportColumns))
	for i, col := range exportColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, rec := range records {
		row := []any{
			rec.InvoiceID,
			string(rec.Status),
			rec.Supplier,
			exportAmount(rec.Amount),
			rec.Currency,
			rec.DueDate,
			rec.OriginalFilename,
			rec.ByteSize,
			rec.Note,
			exportTime(rec.CreatedAt),
			exportTime(rec.UpdatedAt),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func exportAmount(amount *float64) any {
	if amount == nil {
		return ""
	}
	return *amount
}

func exportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeErrorMessage(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}
