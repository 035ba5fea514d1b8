package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

// Kind clasifica los fallos del ciclo de vida de un e-CF. El conjunto es cerrado:
// toda falla que sale del núcleo tiene exactamente uno de estos tipos.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindCredential llave o certificado ausente/ilegible. Se detecta antes de cualquier llamada de red.
	KindCredential
	// KindAuthentication falló el handshake o la emisión del token, o no hay sesión activa.
	KindAuthentication
	// KindSigning el documento no tiene la raíz esperada o la firma falló.
	KindSigning
	// KindValidationRejection la DGII rechazó el documento por reglas de negocio (ej. código 2).
	KindValidationRejection
	// KindTransport red, timeout o 5xx. Reintentable a criterio del llamador.
	KindTransport
	// KindNotFound trackId o clave de negocio desconocidos para la DGII.
	KindNotFound
	// KindSessionExpired la DGII respondió 401: el token es inválido o expiró.
	KindSessionExpired
	// KindProtocol la respuesta de la DGII no respeta el contrato (ej. estado desconocido).
	KindProtocol
	// KindInvalidInput argumento inválido del llamador (trackId vacío, nombre de archivo vacío).
	KindInvalidInput
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindCredential:          "credential",
	KindAuthentication:      "authentication",
	KindSigning:             "signing",
	KindValidationRejection: "validation_rejection",
	KindTransport:           "transport",
	KindNotFound:            "not_found",
	KindSessionExpired:      "session_expired",
	KindProtocol:            "protocol",
	KindInvalidInput:        "invalid_input",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error es el error tipado que produce la capa de interceptores. Se construye una sola vez
// en el borde de transporte; aguas abajo solo se consulta Kind (vía errors.Is / errors.As).
type Error struct {
	Kind     Kind
	Op       string           // operación, ej. "ecf.SendSummary"
	Status   int              // código HTTP original (0 si no hubo respuesta)
	Code     int              // código de la DGII ("codigo"), 0 si no aplica
	Message  string           // mensaje o estado reportado por la DGII
	Messages []entity.Message // detalle de validaciones de la DGII
	Err      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&sb, " (http %d)", e.Status)
	}
	if e.Code != 0 {
		fmt.Fprintf(&sb, " [codigo %d]", e.Code)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	for _, m := range e.Messages {
		sb.WriteString("; ")
		sb.WriteString(m.String())
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is permite comparar contra los sentinelas de este paquete: errors.Is(err, domain.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Kind == e.Kind
}

// Sentinelas por tipo (solo Kind; usar con errors.Is).
var (
	ErrCredential          = &Error{Kind: KindCredential}
	ErrAuthentication      = &Error{Kind: KindAuthentication}
	ErrSigning             = &Error{Kind: KindSigning}
	ErrValidationRejection = &Error{Kind: KindValidationRejection}
	ErrTransport           = &Error{Kind: KindTransport}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrSessionExpired      = &Error{Kind: KindSessionExpired}
	ErrProtocol            = &Error{Kind: KindProtocol}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
)

// E construye un *Error. Si err ya es un *Error se conserva como causa.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf construye un *Error con un mensaje formateado.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf devuelve el Kind del primer *Error en la cadena, o KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf devuelve el código HTTP original asociado al error (0 si no hay).
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// AuthorityCode devuelve el código de la DGII asociado al error (0 si no hay).
func AuthorityCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
