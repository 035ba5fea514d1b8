// Package pdf genera la representación impresa de un e-CF firmado (DGII, República Dominicana).
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razón Social + RNC  │  Tipo e-CF + e-NCF + Fecha   │
//	│  ─────────────────────────────────────────────────────────  │
//	│  COMPRADOR: Razón social + RNC                              │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: # | Descripción | Cant | P.Unit | Monto             │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Monto gravado / ITBIS / TOTAL                     │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TIMBRE: QR + Código de seguridad + Fecha de firma          │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	pkgecf "github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 56, Blue: 101}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator arma el PDF con Maroto v2. Las URLs base determinan el host del timbre.
type MarotoPDFGenerator struct {
	ecfBaseURL string
	fcBaseURL  string
}

// NewMarotoPDFGenerator construye el generador con las URLs base del ambiente
// (https://ecf.dgii.gov.do/{ambiente} y https://fc.dgii.gov.do/{ambiente}).
func NewMarotoPDFGenerator(ecfBaseURL, fcBaseURL string) *MarotoPDFGenerator {
	return &MarotoPDFGenerator{ecfBaseURL: ecfBaseURL, fcBaseURL: fcBaseURL}
}

// GenerateFromSignedXML extrae la representación del XML firmado y genera el PDF.
func (g *MarotoPDFGenerator) GenerateFromSignedXML(ctx context.Context, signedXML []byte) ([]byte, error) {
	rep, err := FromSignedXML(signedXML)
	if err != nil {
		return nil, err
	}
	return g.Generate(ctx, rep)
}

// Generate genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) Generate(ctx context.Context, rep *Representation) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(rep.Type.String()+" "+rep.ENCF, true).
		WithAuthor(nonEmpty(rep.IssuerName, rep.IssuerRNC), true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(rep))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(buyerRow(rep))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	if len(rep.Lines) > 0 {
		m.AddRows(tableHeaderRow())
		m.AddRows(tableDetailRows(rep.Lines)...)
		m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	}
	m.AddRows(totalsRow(rep))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(timbreRows(rep, rep.TimbreURL(g.ecfBaseURL, g.fcBaseURL))...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: razón social + RNC (izq) y tipo + e-NCF + fecha (der).
func headerRow(rep *Representation) core.Row {
	fecha := "—"
	if !rep.IssueDate.IsZero() {
		fecha = pkgecf.FormatDate(rep.IssueDate)
	}
	return row.New(20).Add(
		col.New(7).Add(
			text.New(nonEmpty(rep.IssuerName, "Emisor"), props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("RNC: "+rep.IssuerRNC, props.Text{Size: 9, Top: 9, Color: colorGray}),
			text.New(nonEmpty(rep.IssuerAddr, ""), props.Text{Size: 8, Top: 14, Color: colorGray}),
		),
		col.New(5).Add(
			text.New(strings.ToUpper(rep.Type.String()), props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right, Color: colorPrimary, Top: 1,
			}),
			text.New("e-NCF: "+rep.ENCF, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha de emisión: "+fecha, props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// buyerRow: datos del comprador. Un consumo sin RNC se imprime como consumidor final.
func buyerRow(rep *Representation) core.Row {
	name := nonEmpty(rep.BuyerName, "Consumidor final")
	return row.New(14).Add(
		col.New(12).Add(
			text.New("COMPRADOR", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(name, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
			text.New("RNC/Cédula: "+nonEmpty(rep.BuyerRNC, "—"), props.Text{Size: 8, Top: 11, Color: colorGray}),
		),
	)
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a, Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("#", 1, align.Center),
		h("Descripción", 5, align.Left),
		h("Cant.", 2, align.Right),
		h("Precio", 2, align.Right),
		h("Monto", 2, align.Right),
	)
}

func tableDetailRows(lines []Line) []core.Row {
	result := make([]core.Row, 0, len(lines))
	for _, l := range lines {
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(fmt.Sprint(l.Number), props.Text{Size: 8, Align: align.Center, Top: 1})),
			col.New(5).Add(text.New(l.Name, props.Text{Size: 8, Top: 1, Left: 1})),
			col.New(2).Add(text.New(l.Quantity.String(), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
			col.New(2).Add(text.New(formatMoney(l.UnitPrice), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
			col.New(2).Add(text.New(formatMoney(l.Amount), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
		))
	}
	return result
}

func totalsRow(rep *Representation) core.Row {
	label := func(s string, top float64) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2, Top: top})
	}
	value := func(s string, top float64) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1, Top: top})
	}
	return row.New(20).Add(
		col.New(6),
		col.New(3).Add(
			label("Monto gravado:", 1),
			label("ITBIS:", 7),
			text.New("TOTAL:", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 2, Top: 13}),
		),
		col.New(3).Add(
			value(formatMoney(rep.TaxedAmount), 1),
			value(formatMoney(rep.TotalITBIS), 7),
			text.New(formatMoney(rep.TotalAmount), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 1, Top: 13}),
		),
	)
}

// timbreRows: QR con la URL de consulta + código de seguridad + fecha de firma.
func timbreRows(rep *Representation, timbre string) []core.Row {
	firma := "—"
	if !rep.SignedAt.IsZero() {
		firma = pkgecf.FormatDateTime(rep.SignedAt)
	}
	return []core.Row{
		row.New(45).Add(
			col.New(4).Add(code.NewQr(timbre, props.Rect{Percent: 95, Center: true})),
			col.New(8).Add(
				text.New("Código de seguridad: "+rep.SecurityCode, props.Text{
					Style: fontstyle.Bold, Size: 10, Top: 4, Left: 3, Color: colorPrimary,
				}),
				text.New("Fecha de firma digital: "+firma, props.Text{Size: 8, Top: 12, Left: 3, Color: colorGray}),
				text.New("Escanee el código QR para verificar este comprobante en la DGII.", props.Text{
					Size: 8, Top: 20, Left: 3, Color: colorGray,
				}),
			),
		),
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatMoney formato dominicano con separador de miles y dos decimales.
// Ej: 1180 → "RD$1,180.00"
func formatMoney(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	n := len(intPart)
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(intPart) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, c)
	}
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "RD$" + string(buf) + frac
}
