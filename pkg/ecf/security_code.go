package ecf

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// SecurityCodeLength longitud del código de seguridad del e-CF.
const SecurityCodeLength = 6

const securityAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateSecurityCode genera un código alfanumérico aleatorio de 6 caracteres.
// Se usa cuando el código debe conocerse antes de firmar (ej. CodigoSeguridadeCF del RFCE).
func GenerateSecurityCode() (string, error) {
	var sb strings.Builder
	limit := big.NewInt(int64(len(securityAlphabet)))
	for i := 0; i < SecurityCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("ecf: generar código de seguridad: %w", err)
		}
		sb.WriteByte(securityAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// SecurityCodeFromSignature deriva el código de seguridad de los primeros 6 caracteres del SignatureValue.
func SecurityCodeFromSignature(signatureValue string) (string, error) {
	v := strings.Join(strings.Fields(signatureValue), "")
	if len(v) < SecurityCodeLength {
		return "", fmt.Errorf("ecf: SignatureValue demasiado corto para derivar el código de seguridad")
	}
	return v[:SecurityCodeLength], nil
}
