package ecf

import (
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimbreParams datos que viajan en la URL del QR (timbre) de la representación impresa.
type TimbreParams struct {
	IssuerRNC    string
	BuyerRNC     string
	ENCF         string
	IssueDate    time.Time
	TotalAmount  decimal.Decimal
	SignedAt     time.Time
	SecurityCode string
}

// TimbreURL URL de consulta del timbre de un e-CF. baseURL es https://ecf.dgii.gov.do/{ambiente}.
func TimbreURL(baseURL string, p TimbreParams) string {
	return buildTimbre(strings.TrimRight(baseURL, "/")+"/ConsultaTimbre", [][2]string{
		{"RncEmisor", p.IssuerRNC},
		{"RncComprador", p.BuyerRNC},
		{"ENCF", p.ENCF},
		{"FechaEmision", FormatDate(p.IssueDate)},
		{"MontoTotal", p.TotalAmount.StringFixed(2)},
		{"FechaFirma", FormatDateTime(p.SignedAt)},
		{"CodigoSeguridad", p.SecurityCode},
	})
}

// TimbreFCURL URL del timbre de una factura de consumo resumida (RFCE). fcBaseURL es https://fc.dgii.gov.do/{ambiente}.
func TimbreFCURL(fcBaseURL string, p TimbreParams) string {
	return buildTimbre(strings.TrimRight(fcBaseURL, "/")+"/ConsultaTimbreFC", [][2]string{
		{"RncEmisor", p.IssuerRNC},
		{"ENCF", p.ENCF},
		{"MontoTotal", p.TotalAmount.StringFixed(2)},
		{"CodigoSeguridad", p.SecurityCode},
	})
}

// buildTimbre conserva el orden de los parámetros (url.Values los ordena alfabéticamente).
func buildTimbre(base string, params [][2]string) string {
	var sb strings.Builder
	sb.WriteString(base)
	for i, kv := range params {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(kv[0])
		sb.WriteByte('=')
		sb.WriteString(strings.ReplaceAll(url.QueryEscape(kv[1]), "+", "%20"))
	}
	return sb.String()
}
