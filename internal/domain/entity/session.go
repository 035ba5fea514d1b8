package entity

import (
	"fmt"
	"strings"
	"time"
)

// Environment ambiente del gateway e-CF de la DGII.
type Environment string

const (
	EnvironmentDev  Environment = "DEV"  // TesteCF (pre-certificación)
	EnvironmentTest Environment = "TEST" // CerteCF (certificación)
	EnvironmentProd Environment = "PROD" // eCF (producción)
)

// PathSegment devuelve el segmento de URL que la DGII usa para el ambiente.
func (e Environment) PathSegment() string {
	switch e {
	case EnvironmentTest:
		return "certecf"
	case EnvironmentProd:
		return "ecf"
	default:
		return "testecf"
	}
}

// ParseEnvironment acepta DEV/TEST/PROD y los nombres de la DGII (TesteCF, CerteCF, eCF).
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "testecf":
		return EnvironmentDev, nil
	case "test", "cert", "certecf":
		return EnvironmentTest, nil
	case "prod", "ecf":
		return EnvironmentProd, nil
	}
	return "", fmt.Errorf("ambiente e-CF desconocido %q", s)
}

// Session estado autenticado contra el gateway. Un token vacío nunca es una sesión válida.
type Session struct {
	Token       string
	Endpoint    string // URL de autenticación que emitió el token
	Environment Environment
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Valid indica si la sesión tiene token.
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// ExpiredAt informa si la sesión ya venció en el instante dado. Sin fecha de expiración se asume vigente;
// la renovación es responsabilidad del llamador (re-autenticar ante ErrSessionExpired).
func (s *Session) ExpiredAt(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// AuthorizationHeader valor del header Authorization.
func (s *Session) AuthorizationHeader() string {
	return "Bearer " + s.Token
}
