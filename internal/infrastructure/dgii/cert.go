// Carga de la credencial de firma desde .p12 (PKCS#12) o par PEM.

package dgii

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

// LoadCredential elige el cargador según la extensión del archivo.
// Si certPath está vacío retorna una credencial vacía (no utilizable) y err nil:
// las operaciones que la requieran fallarán con ErrCredential sin tocar la red.
func LoadCredential(certPath, keyPath, password string) (*entity.Credential, error) {
	if certPath == "" {
		return &entity.Credential{}, nil
	}
	lower := strings.ToLower(certPath)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		return LoadFromP12(certPath, password)
	}
	return LoadFromPEM(certPath, keyPath)
}

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
func LoadFromP12(path, password string) (*entity.Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer p12: %w", err)
	}
	return DecodeP12(data, password)
}

// DecodeP12 decodifica un PKCS#12 en memoria. Los .p12 emitidos por las entidades certificadoras
// dominicanas suelen traer la cadena completa; pkcs12.Decode solo admite un certificado, así que
// en ese caso se recorre la conversión a PEM y se toma la hoja que corresponde a la llave.
func DecodeP12(data []byte, password string) (*entity.Credential, error) {
	priv, cert, err := pkcs12.Decode(data, password)
	if err == nil {
		return &entity.Credential{PrivateKey: priv, Certificate: cert}, nil
	}
	blocks, pemErr := pkcs12.ToPEM(data, password)
	if pemErr != nil {
		return nil, fmt.Errorf("decodificar p12: %w", err)
	}
	var keyPEM []byte
	var certs []*pem.Block
	for _, b := range blocks {
		if b.Type == "CERTIFICATE" {
			certs = append(certs, b)
			continue
		}
		keyPEM = append(keyPEM, pem.EncodeToMemory(b)...)
	}
	// El orden de los certificados en el p12 no está garantizado: la hoja debe ir primero.
	for i := range certs {
		certPEM := pem.EncodeToMemory(certs[i])
		for j, other := range certs {
			if j != i {
				certPEM = append(certPEM, pem.EncodeToMemory(other)...)
			}
		}
		if cred, err := credentialFromPEM(certPEM, keyPEM); err == nil {
			return cred, nil
		}
	}
	return nil, fmt.Errorf("decodificar p12: ningún certificado corresponde a la llave privada")
}

// LoadFromPEM carga certificado y llave desde archivos PEM (separados o combinados).
func LoadFromPEM(certPath, keyPath string) (*entity.Credential, error) {
	if keyPath == "" {
		keyPath = certPath
	}
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("cargar PEM: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("cargar PEM: %w", err)
	}
	return credentialFromPEM(certPEM, keyPEM)
}

func credentialFromPEM(certPEM, keyPEM []byte) (*entity.Credential, error) {
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("cargar PEM: %w", err)
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parsear certificado: %w", err)
	}
	cred := &entity.Credential{PrivateKey: pair.PrivateKey, Certificate: leaf}
	for _, der := range pair.Certificate[1:] {
		ca, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parsear cadena: %w", err)
		}
		cred.Chain = append(cred.Chain, ca)
	}
	if _, ok := cred.PrivateKey.(crypto.Signer); !ok {
		return nil, fmt.Errorf("la llave privada no soporta firma")
	}
	return cred, nil
}
