// Package ecf: utilidades públicas para comprobantes fiscales electrónicos de la DGII
// (República Dominicana): interfaz de firma, RNC/cédula, código de seguridad, timbre y fechas.
package ecf

// Signer firma un XML con firma XMLDSig envuelta anclada al elemento raíz indicado.
type Signer interface {
	// Sign toma el XML sin firmar y el nombre local de su raíz (ECF, RFCE, SemillaModel, ...)
	// y retorna el XML con <Signature> como último hijo de la raíz.
	Sign(xmlBytes []byte, rootName string) ([]byte, error)
}
