package dgii

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

const maxErrorText = 512

// classify es el interceptor de respuestas: convierte status HTTP + cuerpo en un *domain.Error.
// Retorna nil para 2xx. Es el único lugar donde se decide el Kind de una respuesta del gateway.
func classify(op string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	e := &domain.Error{Op: op, Status: status}
	ae, ok := decodeAuthorityError(body)
	if ok {
		e.Code = int(ae.Code)
		e.Message = ae.text()
		e.Messages = []entity.Message(ae.Messages)
	} else {
		e.Message = plainText(body)
	}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = domain.KindSessionExpired
	case status == http.StatusForbidden:
		e.Kind = domain.KindAuthentication
	case status == http.StatusNotFound:
		e.Kind = domain.KindNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Kind = domain.KindValidationRejection
		// Un 400 sin código explícito es un rechazo de reglas de negocio.
		if e.Code == 0 {
			e.Code = entity.CodeRejected
		}
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		e.Kind = domain.KindTransport
	default:
		e.Kind = domain.KindProtocol
	}
	return e
}

// transportError errores de red, timeouts y cancelaciones: no hubo respuesta del gateway.
func transportError(op string, err error) error {
	return domain.E(domain.KindTransport, op, err)
}

func decodeAuthorityError(body []byte) (authorityError, bool) {
	var ae authorityError
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return ae, false
	}
	if err := json.Unmarshal(body, &ae); err != nil {
		return ae, false
	}
	return ae, true
}

func plainText(body []byte) string {
	s := strings.TrimSpace(string(body))
	s = strings.Trim(s, `"`)
	if len(s) > maxErrorText {
		s = s[:maxErrorText] + "..."
	}
	return s
}
