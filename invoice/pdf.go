// Package invoice renders the fixed A4 invoice document of the business.
// Rendering is pure: everything comes from the InvoiceData argument, no
// store access, no clock.
package invoice

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/kleinballenmafia/ballen_backend/models"
	"github.com/shopspring/decimal"
)

type InvoiceData struct {
	InvoiceNumber   string             `json:"invoiceNumber"`
	InvoiceDate     string             `json:"invoiceDate"`
	Customer        string             `json:"customer"`
	CustomerAddress string             `json:"customerAddress"`
	Items           []models.OrderItem `json:"items"`
}

// Fixed issuer details printed on every invoice.
const (
	senderLine   = "Kleinballenmafia, St.-Vitus-Weg 8, 72108 Rottenburg"
	taxNumber    = "86337/48858"
	disclaimer   = "* Da ich Kleinunternehmer bin, wird gemäß § 19 UStG keine Umsatzsteuer berechnet."
	footerName   = "Paul Nichter"
	footerStreet = "Kirchstraße 22"
	footerCity   = "72145 Hirrlingen"
	footerTel    = "Tel.:   07478/3380867"
	footerMobile = "Mobil: 01573/7948061"
	footerEmail  = "Email: info@kleinballenmafia-frommenhausen.de"
)

// productDescriptions maps product names to their invoice line description.
var productDescriptions = map[string]string{
	"Gerstenstroh":   "HD Ballen Gerstenstroh",
	"Weizenstroh":    "HD Ballen Weizenstroh",
	"Heu":            "HD Ballen Heu",
	"Großballen Heu": "Großballen Heu",
}

func describeProduct(product string) string {
	if desc, ok := productDescriptions[product]; ok {
		return desc
	}
	return "HD Ballen " + product
}

// FormatAmount renders a money amount with two decimals and a comma
// decimal separator ("12,50").
func FormatAmount(amount decimal.Decimal) string {
	return strings.Replace(amount.StringFixed(2), ".", ",", 1)
}

// TotalAmount sums quantity * price_per_unit over all items.
func TotalAmount(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount())
	}
	return total
}

// splitAddressLines breaks a free-form address into display lines on commas
// and newlines, dropping empty segments.
func splitAddressLines(address string) []string {
	var lines []string
	for _, part := range strings.FieldsFunc(address, func(r rune) bool {
		return r == ',' || r == '\n'
	}) {
		part = strings.TrimSpace(part)
		if part != "" {
			lines = append(lines, part)
		}
	}
	return lines
}

// RenderInvoicePDF draws the invoice document and returns the PDF bytes.
func RenderInvoicePDF(data InvoiceData) ([]byte, error) {
	const pageWidth = 210.0

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	total := TotalAmount(data.Items)

	// Title, centered and underlined.
	pdf.SetFont("Helvetica", "B", 28)
	pdf.SetTextColor(0, 0, 0)
	title := "RECHNUNG"
	titleWidth := pdf.GetStringWidth(title)
	pdf.Text((pageWidth-titleWidth)/2, 25, title)
	pdf.SetLineWidth(0.8)
	pdf.Line((pageWidth-titleWidth)/2, 27, (pageWidth+titleWidth)/2, 27)

	// Invoice metadata block, right side.
	const detailsLabelX, detailsValueX = 130.0, 165.0
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Text(detailsLabelX, 34, "Rechnungsdatum:")
	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(detailsValueX, 34, tr(data.InvoiceDate))
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Text(detailsLabelX, 39, "Rechnungsnr.:")
	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(detailsValueX, 39, tr(data.InvoiceNumber))
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Text(detailsLabelX, 44, "Steuernummer:")
	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(detailsValueX, 44, taxNumber)

	// Small grey sender line above the recipient window.
	pdf.SetFont("Helvetica", "", 7)
	pdf.SetTextColor(100, 100, 100)
	pdf.Text(25, 62, tr(senderLine))
	pdf.SetLineWidth(0.3)
	pdf.SetDrawColor(100, 100, 100)
	pdf.Line(25, 63, 25+pdf.GetStringWidth(tr(senderLine)), 63)

	// Recipient.
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.Text(25, 72, tr(data.Customer))
	addrY := 78.0
	for _, line := range splitAddressLines(data.CustomerAddress) {
		pdf.Text(25, addrY, tr(line))
		addrY += 5
	}

	// Item table.
	const (
		tableTop   = 105.0
		tableLeft  = 25.0
		tableRight = 185.0
	)
	colBeschreibung := 40.0
	colAnzahl := 95.0
	colBezug := 113.0
	colSatz := 127.0
	colBetrag := 147.0
	colMwst := 172.0

	pdf.SetFillColor(240, 240, 240)
	pdf.Rect(tableLeft, tableTop-6, tableRight-tableLeft, 8, "F")

	pdf.SetFont("Helvetica", "B", 9)
	pdf.Text(tableLeft+2, tableTop, "Pos.")
	pdf.Text(colBeschreibung, tableTop, "Beschreibung")
	pdf.Text(colAnzahl, tableTop, "Anzahl")
	pdf.Text(colBezug, tableTop, "Bezug")
	pdf.Text(colSatz, tableTop, "Satz")
	pdf.Text(colBetrag, tableTop, tr("Betrag in €"))
	pdf.Text(colMwst, tableTop, "MwSt.")

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.5)
	pdf.Line(tableLeft, tableTop-6, tableRight, tableTop-6)
	pdf.Line(tableLeft, tableTop+2, tableRight, tableTop+2)
	for _, x := range []float64{tableLeft, colBeschreibung - 2, colAnzahl - 2, colBezug - 2, colSatz - 4, colBetrag - 4, colMwst - 2, tableRight} {
		pdf.Line(x, tableTop-6, x, tableTop+2)
	}

	const rowSpacing = 8.0
	pdf.SetFont("Helvetica", "", 9)
	for i, item := range data.Items {
		rowY := tableTop + 10 + float64(i)*rowSpacing
		pdf.Text(tableLeft+4, rowY, fmt.Sprintf("%d", i+1))
		pdf.Text(colBeschreibung, rowY, tr(describeProduct(item.Product)))
		pdf.Text(colAnzahl+4, rowY, fmt.Sprintf("%d", item.Quantity))
		pdf.Text(colBezug+2, rowY, "stk")
		pdf.Text(colSatz-4, rowY, tr("€     "+FormatAmount(item.PricePerUnit)))
		lineAmount := FormatAmount(item.Amount())
		pdf.Text(colBetrag+18-pdf.GetStringWidth(lineAmount), rowY, lineAmount)
		pdf.Text(colMwst+5, rowY, "0%")
	}

	// Table body outline grows with the item count.
	minTableHeight := 70.0
	itemsHeight := float64(len(data.Items))*rowSpacing + 16
	tableHeight := minTableHeight
	if itemsHeight > tableHeight {
		tableHeight = itemsHeight
	}
	tableBottom := tableTop + tableHeight

	pdf.SetLineWidth(0.3)
	for _, x := range []float64{tableLeft, colBeschreibung - 2, colAnzahl - 2, colBezug - 2, colSatz - 4, colBetrag - 4, colMwst - 2, tableRight} {
		pdf.Line(x, tableTop+2, x, tableBottom)
	}
	pdf.Line(tableLeft, tableBottom, tableRight, tableBottom)

	// Totals block.
	totalText := FormatAmount(total)
	totalsY := tableBottom + 14
	pdf.SetFont("Helvetica", "B", 10)
	label := "Zwischensumme"
	pdf.Text(colBetrag-6-pdf.GetStringWidth(label), totalsY, label)
	pdf.SetFillColor(220, 220, 200)
	pdf.Rect(colBetrag-4, totalsY-5, 10, 7, "F")
	pdf.Text(colBetrag, totalsY, tr("€"))
	pdf.SetFillColor(245, 245, 235)
	pdf.Rect(colBetrag+6, totalsY-5, tableRight-colBetrag-6, 7, "F")
	pdf.Text(tableRight-3-pdf.GetStringWidth(totalText), totalsY, totalText)

	// Two blank rows between subtotal and final amount.
	pdf.SetDrawColor(180, 180, 180)
	row2Y := totalsY + 9
	pdf.Rect(colBetrag-4, row2Y-5, tableRight-colBetrag+4, 7, "D")
	row3Y := row2Y + 9
	pdf.Rect(colBetrag-4, row3Y-5, tableRight-colBetrag+4, 7, "D")

	totalY := row3Y + 12
	pdf.SetFont("Helvetica", "B", 11)
	label = "Rechnungsbetrag"
	pdf.Text(colBetrag-6-pdf.GetStringWidth(label), totalY, label)
	pdf.SetFillColor(220, 220, 200)
	pdf.Rect(colBetrag-4, totalY-5, 10, 7, "F")
	pdf.Text(colBetrag, totalY, tr("€"))
	pdf.SetFillColor(245, 245, 235)
	pdf.Rect(colBetrag+6, totalY-5, tableRight-colBetrag-6, 7, "F")
	pdf.Text(tableRight-3-pdf.GetStringWidth(totalText), totalY, totalText)

	// Kleinunternehmer disclaimer, centered.
	disclaimerY := totalY + 16
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(80, 80, 80)
	pdf.Text((pageWidth-pdf.GetStringWidth(tr(disclaimer)))/2, disclaimerY, tr(disclaimer))

	// Footer with issuer contact details.
	const footerY = 265.0
	pdf.SetLineWidth(0.5)
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetTextColor(0, 0, 0)
	pdf.Line(25, footerY-5, 185, footerY-5)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.Text(25, footerY, footerName)
	pdf.SetFont("Helvetica", "", 8)
	pdf.Text(25, footerY+4, tr(footerStreet))
	pdf.Text(25, footerY+8, footerCity)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.Text(75, footerY, "Kontaktinformationen")
	pdf.SetFont("Helvetica", "", 8)
	pdf.Text(75, footerY+4, footerTel)
	pdf.Text(75, footerY+8, footerMobile)
	pdf.Text(75, footerY+12, footerEmail)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
