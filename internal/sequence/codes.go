package sequence

import "fmt"

// Scope keys partition counters so different document families and calendar
// years never contend on the same row.

// JobCodeScope keys project job codes per year.
func JobCodeScope(year int) string {
	return fmt.Sprintf("JOB:%d", year)
}

// InvoiceScope keys AR invoice numbers per year.
func InvoiceScope(year int) string {
	return fmt.Sprintf("INV:%d", year)
}

// PurchaseOrderScope keys purchase order numbers per year.
func PurchaseOrderScope(year int) string {
	return fmt.Sprintf("PO:%d", year)
}

// FormatJobCode renders a project job code, e.g. WK-2026-0042.
func FormatJobCode(year int, seq int64) string {
	return fmt.Sprintf("WK-%d-%04d", year, seq)
}

// FormatInvoiceNumber renders an AR invoice number, e.g. INV-2026-0007.
func FormatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%04d", year, seq)
}

// FormatPONumber renders a purchase order number, e.g. PO-2026-0013.
func FormatPONumber(year int, seq int64) string {
	return fmt.Sprintf("PO-%d-%04d", year, seq)
}
