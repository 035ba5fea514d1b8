package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// DocumentType tipo de comprobante fiscal electrónico (e-CF).
type DocumentType int

const (
	DocTypeCreditoFiscal       DocumentType = 31 // Factura de Crédito Fiscal Electrónica
	DocTypeConsumo             DocumentType = 32 // Factura de Consumo Electrónica (resumen RFCE)
	DocTypeNotaDebito          DocumentType = 33
	DocTypeNotaCredito         DocumentType = 34
	DocTypeCompras             DocumentType = 41
	DocTypeGastosMenores       DocumentType = 43
	DocTypeRegimenesEspeciales DocumentType = 44
	DocTypeGubernamental       DocumentType = 45
	DocTypeExportaciones       DocumentType = 46
	DocTypePagosExterior       DocumentType = 47
)

var documentTypeNames = map[DocumentType]string{
	DocTypeCreditoFiscal:       "Factura de Crédito Fiscal Electrónica",
	DocTypeConsumo:             "Factura de Consumo Electrónica",
	DocTypeNotaDebito:          "Nota de Débito Electrónica",
	DocTypeNotaCredito:         "Nota de Crédito Electrónica",
	DocTypeCompras:             "Compras Electrónico",
	DocTypeGastosMenores:       "Gastos Menores Electrónico",
	DocTypeRegimenesEspeciales: "Regímenes Especiales Electrónico",
	DocTypeGubernamental:       "Gubernamental Electrónico",
	DocTypeExportaciones:       "Comprobante de Exportaciones Electrónico",
	DocTypePagosExterior:       "Comprobante para Pagos al Exterior Electrónico",
}

// Valid indica si el tipo está declarado.
func (t DocumentType) Valid() bool {
	_, ok := documentTypeNames[t]
	return ok
}

func (t DocumentType) String() string {
	if n, ok := documentTypeNames[t]; ok {
		return n
	}
	return "tipo " + strconv.Itoa(int(t))
}

// IsSummary indica si el tipo se envía como resumen (RFCE) al endpoint de consumo.
func (t DocumentType) IsSummary() bool { return t == DocTypeConsumo }

// RootElement nombre del elemento raíz del XML que se firma para este tipo.
func (t DocumentType) RootElement() string {
	if t.IsSummary() {
		return RootRFCE
	}
	return RootECF
}

// Nombres de raíz de los documentos XML que maneja el gateway.
const (
	RootECF     = "ECF"          // comprobante completo
	RootRFCE    = "RFCE"         // resumen de factura de consumo
	RootARECF   = "ARECF"        // aprobación comercial
	RootACECF   = "ACECF"        // acuse de recibo
	RootANECF   = "ANECF"        // anulación de secuencias
	RootSemilla = "SemillaModel" // semilla de autenticación
)

// ENCF número de comprobante fiscal electrónico: "E" + tipo (2 dígitos) + secuencia (10 dígitos).
type ENCF string

const encfLength = 13

// ParseENCF valida la estructura del e-NCF.
func ParseENCF(s string) (ENCF, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != encfLength || s[0] != 'E' {
		return "", fmt.Errorf("e-NCF %q inválido: se espera E + 2 dígitos de tipo + 10 de secuencia", s)
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("e-NCF %q inválido: contiene caracteres no numéricos", s)
		}
	}
	e := ENCF(s)
	if !e.Type().Valid() {
		return "", fmt.Errorf("e-NCF %q inválido: tipo %d no declarado", s, int(e.Type()))
	}
	return e, nil
}

// Type tipo de documento embebido en el e-NCF.
func (e ENCF) Type() DocumentType {
	if len(e) < 3 {
		return 0
	}
	n, err := strconv.Atoi(string(e[1:3]))
	if err != nil {
		return 0
	}
	return DocumentType(n)
}

// Sequence secuencial (10 dígitos) del e-NCF.
func (e ENCF) Sequence() string {
	if len(e) != encfLength {
		return ""
	}
	return string(e[3:])
}

func (e ENCF) String() string { return string(e) }

// DocumentEnvelope documento de negocio serializado antes de la firma. Es un valor inmutable:
// cada envío construye uno nuevo en lugar de mutar una plantilla compartida.
type DocumentEnvelope struct {
	IssuerRNC string
	ENCF      ENCF
	XML       []byte
}

// Type tipo de documento según el e-NCF.
func (d DocumentEnvelope) Type() DocumentType { return d.ENCF.Type() }

// FileName nombre de archivo convencional {RNC}{eNCF}.xml.
func (d DocumentEnvelope) FileName() string {
	return strings.TrimSpace(d.IssuerRNC) + string(d.ENCF) + ".xml"
}

// SignedEnvelope documento firmado, inmutable una vez producido.
type SignedEnvelope struct {
	DocumentEnvelope
	SignedXML    []byte
	SecurityCode string // primeros 6 caracteres del SignatureValue
}
