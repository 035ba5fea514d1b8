package testutil

import (
	"crypto/x509"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// XMLDSigVerifier valida firmas envueltas con goxmldsig contra cert, de forma independiente
// del verificador del paquete signer.
func XMLDSigVerifier(cert *x509.Certificate) func(signedXML []byte) error {
	return func(signedXML []byte) error {
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(signedXML); err != nil {
			return fmt.Errorf("parsear XML: %w", err)
		}
		if doc.Root() == nil {
			return fmt.Errorf("documento sin raíz")
		}
		ctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
			Roots: []*x509.Certificate{cert},
		})
		if _, err := ctx.Validate(doc.Root()); err != nil {
			return fmt.Errorf("xmldsig: %w", err)
		}
		return nil
	}
}
