package ecf

import (
	"fmt"
	"unicode"
)

// pesos para el dígito verificador del RNC (persona jurídica, 9 dígitos).
// Se aplican a los 8 primeros dígitos, de izquierda a derecha.
var rncWeights = [8]int{7, 9, 8, 6, 5, 4, 3, 2}

// ValidateTaxID valida un RNC (9 dígitos) o una cédula (11 dígitos). Acepta guiones y espacios.
func ValidateTaxID(taxID string) error {
	digits := extractDigits(taxID)
	switch len(digits) {
	case 9:
		return ValidateRNC(taxID)
	case 11:
		return ValidateCedula(taxID)
	}
	return fmt.Errorf("ecf: RNC/cédula debe tener 9 u 11 dígitos, se encontraron %d", len(digits))
}

// ValidateRNC valida el dígito verificador de un RNC de 9 dígitos (módulo 11).
func ValidateRNC(rnc string) error {
	digits := extractDigits(rnc)
	if len(digits) != 9 {
		return fmt.Errorf("ecf: RNC debe tener 9 dígitos, se encontraron %d", len(digits))
	}
	expected, err := ComputeRNCCheckDigit(string(digits[:8]))
	if err != nil {
		return err
	}
	if digits[8] != expected {
		return fmt.Errorf("ecf: dígito verificador del RNC inválido: esperado %c, recibido %c", expected, digits[8])
	}
	return nil
}

// ComputeRNCCheckDigit calcula el dígito verificador para los 8 primeros dígitos del RNC.
func ComputeRNCCheckDigit(base string) (byte, error) {
	digits := extractDigits(base)
	if len(digits) < 8 {
		return 0, fmt.Errorf("ecf: se requieren 8 dígitos para calcular el verificador del RNC, se encontraron %d", len(digits))
	}
	var sum int
	for i, d := range digits[:8] {
		sum += int(d-'0') * rncWeights[i]
	}
	check := sum % 11
	return byte('0' + (10-check)%9 + 1), nil
}

// ValidateCedula valida una cédula de 11 dígitos con el algoritmo de Luhn.
func ValidateCedula(cedula string) error {
	digits := extractDigits(cedula)
	if len(digits) != 11 {
		return fmt.Errorf("ecf: cédula debe tener 11 dígitos, se encontraron %d", len(digits))
	}
	var sum int
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if (len(digits)-1-i)%2 == 1 {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
	}
	if sum%10 != 0 {
		return fmt.Errorf("ecf: dígito verificador de la cédula inválido")
	}
	return nil
}

// NormalizeTaxID deja solo los dígitos del RNC/cédula.
func NormalizeTaxID(taxID string) string {
	return string(extractDigits(taxID))
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return out
}
