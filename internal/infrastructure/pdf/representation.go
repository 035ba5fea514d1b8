package pdf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	pkgecf "github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// summaryFCThreshold monto a partir del cual una factura de consumo se consulta con el
// timbre completo (ConsultaTimbre) en lugar del de resúmenes (ConsultaTimbreFC).
var summaryFCThreshold = decimal.NewFromInt(250000)

// Line línea de detalle de la representación impresa.
type Line struct {
	Number    int
	Name      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal
}

// Representation datos que se imprimen de un e-CF firmado.
type Representation struct {
	Type         entity.DocumentType
	ENCF         string
	IssuerRNC    string
	IssuerName   string
	IssuerAddr   string
	BuyerRNC     string
	BuyerName    string
	IssueDate    time.Time
	SignedAt     time.Time
	Lines        []Line
	TaxedAmount  decimal.Decimal
	TotalITBIS   decimal.Decimal
	TotalAmount  decimal.Decimal
	SecurityCode string
}

// FromSignedXML extrae la representación de un ECF o RFCE firmado. El código de seguridad
// sale del SignatureValue (o de CodigoSeguridadeCF en un resumen).
func FromSignedXML(signedXML []byte) (*Representation, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = pkgecf.CharsetReader
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return nil, fmt.Errorf("pdf: XML inválido: %w", err)
	}
	root := doc.Root()
	if root == nil || (root.Tag != entity.RootECF && root.Tag != entity.RootRFCE) {
		return nil, fmt.Errorf("pdf: se espera un documento ECF o RFCE")
	}

	encf, err := entity.ParseENCF(find(root, "eNCF"))
	if err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	rep := &Representation{
		Type:        encf.Type(),
		ENCF:        string(encf),
		IssuerRNC:   find(root, "RNCEmisor"),
		IssuerName:  find(root, "RazonSocialEmisor"),
		IssuerAddr:  find(root, "DireccionEmisor"),
		BuyerRNC:    find(root, "RNCComprador"),
		BuyerName:   find(root, "RazonSocialComprador"),
		IssueDate:   parseDate(pkgecf.DateLayout, find(root, "FechaEmision")),
		SignedAt:    parseDate(pkgecf.DateTimeLayout, find(root, "FechaHoraFirma")),
		TaxedAmount: amount(find(root, "MontoGravadoTotal")),
		TotalITBIS:  amount(find(root, "TotalITBIS")),
		TotalAmount: amount(find(root, "MontoTotal")),
	}

	for i, item := range root.FindElements(".//DetallesItems/Item") {
		ln := Line{
			Number:    i + 1,
			Name:      childText(item, "NombreItem"),
			Quantity:  amount(childText(item, "CantidadItem")),
			UnitPrice: amount(childText(item, "PrecioUnitarioItem")),
			Amount:    amount(childText(item, "MontoItem")),
		}
		if n, err := strconv.Atoi(childText(item, "NumeroLinea")); err == nil {
			ln.Number = n
		}
		rep.Lines = append(rep.Lines, ln)
	}

	rep.SecurityCode = find(root, "CodigoSeguridadeCF")
	if rep.SecurityCode == "" {
		if sv := root.FindElement(".//SignatureValue"); sv != nil {
			rep.SecurityCode, _ = pkgecf.SecurityCodeFromSignature(sv.Text())
		}
	}
	if rep.SecurityCode == "" {
		return nil, fmt.Errorf("pdf: el documento no está firmado")
	}
	return rep, nil
}

// TimbreURL URL del QR. Las facturas de consumo por debajo del umbral usan el timbre de resúmenes.
func (r *Representation) TimbreURL(ecfBaseURL, fcBaseURL string) string {
	p := pkgecf.TimbreParams{
		IssuerRNC:    r.IssuerRNC,
		BuyerRNC:     r.BuyerRNC,
		ENCF:         r.ENCF,
		IssueDate:    r.IssueDate,
		TotalAmount:  r.TotalAmount,
		SignedAt:     r.SignedAt,
		SecurityCode: r.SecurityCode,
	}
	if r.Type.IsSummary() && r.TotalAmount.LessThan(summaryFCThreshold) {
		return pkgecf.TimbreFCURL(fcBaseURL, p)
	}
	return pkgecf.TimbreURL(ecfBaseURL, p)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func find(root *etree.Element, tag string) string {
	if el := root.FindElement(".//" + tag); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func amount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDate(layout, s string) time.Time {
	t, err := time.ParseInLocation(layout, s, pkgecf.SantoDomingo)
	if err != nil {
		return time.Time{}
	}
	return t
}
