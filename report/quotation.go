// Package report renders customer-facing documents through a Gotenberg
// sidecar. Layout stays minimal; the commercial fields come straight from the
// domain rows.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wellkorea/wellkorea-erp/internal/masterdata"
	"github.com/wellkorea/wellkorea-erp/internal/project"
	"github.com/wellkorea/wellkorea-erp/internal/quotation"
)

// ProjectSource resolves the project header fields for a document.
type ProjectSource interface {
	Get(ctx context.Context, id int64) (*project.Project, error)
}

// ProductSource resolves product names for line items.
type ProductSource interface {
	GetProduct(ctx context.Context, id int64) (*masterdata.Product, error)
}

// QuotationRenderer builds the quotation PDF. It satisfies the renderer ports
// of both the HTTP handler and the dispatch worker.
type QuotationRenderer struct {
	Client   *Client
	Projects ProjectSource
	Products ProductSource
}

var quotationTmpl = template.Must(template.New("quotation").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: sans-serif; margin: 40px; color: #1a1a1a; }
h1 { font-size: 20px; }
table { width: 100%; border-collapse: collapse; margin-top: 24px; }
th, td { border: 1px solid #999; padding: 6px 10px; font-size: 12px; }
th { background: #efefef; text-align: left; }
td.num { text-align: right; }
tfoot td { font-weight: bold; }
.meta { margin-top: 8px; font-size: 12px; color: #444; }
</style>
</head>
<body>
<h1>WellKorea Quotation</h1>
<div class="meta">
<div>Job code: {{.JobCode}}</div>
<div>Project: {{.ProjectName}}</div>
<div>Revision: {{.Version}}</div>
<div>Quote date: {{.QuoteDate}}</div>
<div>Valid until: {{.ValidUntil}}</div>
</div>
<table>
<thead>
<tr><th>#</th><th>Item</th><th>Qty</th><th>Unit price</th><th>Amount</th></tr>
</thead>
<tbody>
{{range .Lines}}<tr>
<td>{{.No}}</td><td>{{.Name}}</td><td class="num">{{.Quantity}}</td>
<td class="num">{{.UnitPrice}}</td><td class="num">{{.Amount}}</td>
</tr>
{{end}}</tbody>
<tfoot>
<tr><td colspan="4">Total</td><td class="num">{{.Total}}</td></tr>
</tfoot>
</table>
</body>
</html>`))

type quotationLine struct {
	No        int
	Name      string
	Quantity  string
	UnitPrice string
	Amount    string
}

type quotationPage struct {
	JobCode     string
	ProjectName string
	Version     int
	QuoteDate   string
	ValidUntil  string
	Lines       []quotationLine
	Total       string
}

// RenderQuotation resolves the header and line names, fills the template and
// converts it via Gotenberg.
func (r *QuotationRenderer) RenderQuotation(ctx context.Context, q *quotation.Quotation) ([]byte, error) {
	if r.Client == nil {
		return nil, errors.New("report: gotenberg client not configured")
	}
	page := quotationPage{
		Version:   q.Version,
		QuoteDate: q.QuoteDate.Format("2006-01-02"),
		Total:     formatAmount(q.TotalAmount),
	}
	if q.ValidityDays > 0 {
		page.ValidUntil = q.QuoteDate.AddDate(0, 0, q.ValidityDays).Format("2006-01-02")
	}
	if r.Projects != nil {
		proj, err := r.Projects.Get(ctx, q.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("resolve project %d: %w", q.ProjectID, err)
		}
		page.JobCode = proj.JobCode
		page.ProjectName = proj.Name
	}
	for _, l := range q.Lines {
		name, err := r.productName(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		page.Lines = append(page.Lines, quotationLine{
			No:        l.LineNo,
			Name:      name,
			Quantity:  formatAmount(l.Quantity),
			UnitPrice: formatAmount(l.UnitPrice),
			Amount:    formatAmount(l.Total()),
		})
	}

	var buf bytes.Buffer
	if err := quotationTmpl.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("fill quotation template: %w", err)
	}
	return r.Client.RenderHTML(ctx, buf.String())
}

// productName falls back to the bare identifier when the product row has
// been removed since the quotation was drafted.
func (r *QuotationRenderer) productName(ctx context.Context, productID int64) (string, error) {
	if r.Products == nil {
		return fmt.Sprintf("Product #%d", productID), nil
	}
	p, err := r.Products.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, masterdata.ErrNotFound) {
			return fmt.Sprintf("Product #%d", productID), nil
		}
		return "", fmt.Errorf("resolve product %d: %w", productID, err)
	}
	if p.Unit != "" {
		return fmt.Sprintf("%s (%s)", p.Name, p.Unit), nil
	}
	return p.Name, nil
}

// amountPrinter groups digits for the customer document. Quotations go out
// in KRW-sized figures, unreadable without separators.
var amountPrinter = message.NewPrinter(language.English)

func formatAmount(v float64) string {
	return amountPrinter.Sprintf("%.2f", v)
}
