package entity

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
)

// Credential identidad de firma extraída del almacén de llaves (.p12 / PEM).
// Es de solo lectura después de construida; si falta la llave o el certificado no es utilizable.
type Credential struct {
	PrivateKey  crypto.PrivateKey
	Certificate *x509.Certificate
	Chain       []*x509.Certificate // intermedios opcionales, se presentan en el handshake TLS
}

// Usable indica si la credencial tiene llave y certificado.
func (c *Credential) Usable() bool {
	return c != nil && c.PrivateKey != nil && c.Certificate != nil
}

// TLSCertificate arma el tls.Certificate para mutual TLS. Vacío si la credencial no es utilizable.
func (c *Credential) TLSCertificate() tls.Certificate {
	if !c.Usable() {
		return tls.Certificate{}
	}
	chain := make([][]byte, 0, 1+len(c.Chain))
	chain = append(chain, c.Certificate.Raw)
	for _, ca := range c.Chain {
		chain = append(chain, ca.Raw)
	}
	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  c.PrivateKey,
		Leaf:        c.Certificate,
	}
}
