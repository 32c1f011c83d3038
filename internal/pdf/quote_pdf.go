// Package pdf renders quotes with gofpdf.
package pdf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"crmhub/internal/models"
)

// Renderer is the quote rendering surface used by services.
type Renderer interface {
	RenderQuote(w io.Writer, q *models.Quote, seller string) error
	// ArchiveQuote writes the PDF under the files root and returns its path.
	ArchiveQuote(q *models.Quote, seller string) (string, error)
}

type QuoteRenderer struct {
	RootDir  string
	FontPath string
	fontName string
}

// NewQuoteRenderer uses the TTF at fontPath when it exists, otherwise the
// built-in Helvetica, which covers Latin-1 only.
func NewQuoteRenderer(rootDir, fontPath string) *QuoteRenderer {
	r := &QuoteRenderer{RootDir: filepath.Clean(rootDir), fontName: "Helvetica"}
	if fontPath != "" {
		if _, err := os.Stat(fontPath); err == nil {
			r.FontPath = fontPath
			r.fontName = "DejaVu"
		}
	}
	return r
}

func (g *QuoteRenderer) RenderQuote(w io.Writer, q *models.Quote, seller string) error {
	pdf := g.build(q, seller)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render quote %s: %w", q.Number, err)
	}
	return nil
}

func (g *QuoteRenderer) ArchiveQuote(q *models.Quote, seller string) (string, error) {
	dir := filepath.Join(g.RootDir, "quotes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create files dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(fmt.Sprintf("%s.pdf", q.Number)))
	pdf := g.build(q, seller)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("archive quote %s: %w", q.Number, err)
	}
	return path, nil
}

func (g *QuoteRenderer) build(q *models.Quote, seller string) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Quote "+q.Number, true)
	pdf.SetAuthor(seller, true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	if g.FontPath != "" {
		pdf.AddUTF8Font(g.fontName, "", g.FontPath)
		pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
	}
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(g.fontName, "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 18)
	pdf.CellFormat(0, 10, "QUOTE", "", 1, "C", false, 0, "")
	pdf.SetFont(g.fontName, "", 12)
	created := q.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	pdf.CellFormat(0, 7, fmt.Sprintf("%s  dated  %s", q.Number, created.Format("2006-01-02")), "", 1, "C", false, 0, "")
	g.hr(pdf)

	g.sectionTitle(pdf, "Details")
	g.kvLine(pdf, "From", seller)
	g.kvLine(pdf, "Title", q.Title)
	g.kvLine(pdf, "Status", string(q.Status))
	if q.ValidUntil != nil {
		g.kvLine(pdf, "Valid until", q.ValidUntil.Format("2006-01-02"))
	}
	pdf.Ln(2)
	g.hr(pdf)

	g.sectionTitle(pdf, "Items")
	g.itemsTable(pdf, q)
	pdf.Ln(3)

	g.totalLine(pdf, "Subtotal", q.Subtotal.StringFixed(2), q.Currency)
	if !q.DiscountTotal.IsZero() {
		g.totalLine(pdf, fmt.Sprintf("Discount (%s%%)", q.DiscountPercent.String()), "-"+q.DiscountTotal.StringFixed(2), q.Currency)
	}
	if !q.TaxTotal.IsZero() {
		g.totalLine(pdf, fmt.Sprintf("Tax (%s%%)", q.TaxPercent.String()), q.TaxTotal.StringFixed(2), q.Currency)
	}
	pdf.SetFont(g.fontName, "B", 12)
	g.totalLine(pdf, "Total", q.Total.StringFixed(2), q.Currency)

	if q.SignedAt != nil {
		pdf.Ln(6)
		pdf.SetFont(g.fontName, "", 10)
		pdf.MultiCell(0, 6, fmt.Sprintf("Signed electronically via %s on %s.",
			q.SignatureProvider, q.SignedAt.Format("2006-01-02 15:04 MST")), "", "L", false)
	}
	return pdf
}

func (g *QuoteRenderer) itemsTable(pdf *gofpdf.Fpdf, q *models.Quote) {
	widths := []float64{80, 25, 32, 33}
	pdf.SetFont(g.fontName, "B", 10)
	for i, h := range []string{"Item", "Qty", "Unit price", "Line total"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 7, h, "B", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont(g.fontName, "", 10)
	for _, it := range q.Items {
		pdf.CellFormat(widths[0], 6, it.Name, "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, it.Quantity.String(), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 6, it.UnitPrice.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, it.LineTotal.StringFixed(2), "", 1, "R", false, 0, "")
	}
}

func (g *QuoteRenderer) sectionTitle(pdf *gofpdf.Fpdf, s string) {
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 7, s, "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
}

func (g *QuoteRenderer) kvLine(pdf *gofpdf.Fpdf, key, val string) {
	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(45, 6, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, val, "", 1, "L", false, 0, "")
}

func (g *QuoteRenderer) totalLine(pdf *gofpdf.Fpdf, label, amount, currency string) {
	pdf.CellFormat(137, 6, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(33, 6, amount+" "+currency, "", 1, "R", false, 0, "")
}

func (g *QuoteRenderer) hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(20, y, 190, y)
	pdf.SetY(y + 2)
}
