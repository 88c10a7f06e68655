package billing

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf/v2"
)

// RenderInvoicePDF lays out an invoice as an A4 document.
func RenderInvoicePDF(inv *Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, "FleetHire - Invoice", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, fmt.Sprintf("Invoice %s", inv.Number), "", 1, "C", false, 0, "")
	pdf.CellFormat(190, 6, fmt.Sprintf("Issued: %s    Due: %s",
		inv.IssuedAt.Format("02-Jan-2006"), inv.DueAt.Format("02-Jan-2006")), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Charges", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(140, 7, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(50, 7, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, line := range inv.Lines {
		desc := line.Description
		if len(desc) > 70 {
			desc = desc[:67] + "..."
		}
		pdf.CellFormat(140, 6, desc, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.2f", line.Amount), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(140, 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(50, 8, fmt.Sprintf("%.2f", inv.Total), "1", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(140, 8, "Paid", "1", 0, "R", false, 0, "")
	pdf.CellFormat(50, 8, fmt.Sprintf("%.2f", inv.AmountPaid), "1", 1, "R", false, 0, "")

	balance := inv.Total - inv.AmountPaid
	if balance > 0 {
		pdf.SetFillColor(255, 200, 200)
	} else {
		pdf.SetFillColor(200, 255, 200)
	}
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(140, 8, "Balance", "1", 0, "R", true, 0, "")
	pdf.CellFormat(50, 8, fmt.Sprintf("%.2f", balance), "1", 1, "R", true, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
