package dgii

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// ── Respuestas JSON del gateway ───────────────────────────────────────────────

type tokenResponse struct {
	Token    string `json:"token"`
	Expires  string `json:"expira"`
	IssuedAt string `json:"expedido"`
}

type receptionResponse struct {
	TrackID string   `json:"trackId"`
	Error   flexText `json:"error"`
	Message flexText `json:"mensaje"`
}

type summaryResponse struct {
	TrackID      string      `json:"trackId"`
	Code         flexInt     `json:"codigo"`
	Status       string      `json:"estado"`
	Messages     messageList `json:"mensajes"`
	ENCF         string      `json:"encf"`
	SequenceUsed bool        `json:"secuenciaUtilizada"`
}

type trackResultResponse struct {
	TrackID      string      `json:"trackId"`
	Code         flexInt     `json:"codigo"`
	Status       string      `json:"estado"`
	RNC          string      `json:"rnc"`
	ENCF         string      `json:"encf"`
	SequenceUsed bool        `json:"secuenciaUtilizada"`
	ReceivedAt   string      `json:"fechaRecepcion"`
	Messages     messageList `json:"mensajes"`
}

type trackIDResponse struct {
	TrackID    string `json:"trackId"`
	Status     string `json:"estado"`
	ReceivedAt string `json:"fechaRecepcion"`
}

type inquiryResponse struct {
	Code         flexInt         `json:"codigo"`
	Status       string          `json:"estado"`
	IssuerRNC    string          `json:"rncEmisor"`
	ENCF         string          `json:"ncfElectronico"`
	TotalAmount  decimal.Decimal `json:"montoTotal"`
	TotalITBIS   decimal.Decimal `json:"totalITBIS"`
	IssueDate    string          `json:"fechaEmision"`
	SignedAt     string          `json:"fechaFirma"`
	BuyerRNC     string          `json:"rncComprador"`
	SecurityCode string          `json:"codigoSeguridad"`
}

type approvalResponse struct {
	Status   string      `json:"estado"`
	Messages messageList `json:"mensaje"`
}

type voidResponse struct {
	RNC      string      `json:"rnc"`
	Code     flexText    `json:"codigo"`
	Name     string      `json:"nombre"`
	Messages messageList `json:"mensajes"`
}

// authorityError cuerpo de error de la DGII. Los servicios no son uniformes: se aceptan
// "mensaje", "mensajes", "error" y el formato ProblemDetails ("title").
type authorityError struct {
	Code     flexInt     `json:"codigo"`
	Status   string      `json:"estado"`
	Message  flexText    `json:"mensaje"`
	Messages messageList `json:"mensajes"`
	Error    flexText    `json:"error"`
	Title    string      `json:"title"`
}

func (a authorityError) text() string {
	for _, s := range []string{string(a.Message), string(a.Error), a.Status, a.Title} {
		if s != "" {
			return s
		}
	}
	return ""
}

// ── Tipos tolerantes ──────────────────────────────────────────────────────────

// flexInt acepta 1, "1" o null.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// flexText acepta un string, un número o una lista de strings (se unen con "; ").
type flexText string

func (f *flexText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexText(s)
	case '[':
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*f = flexText(strings.Join(list, "; "))
	default:
		*f = flexText(string(b))
	}
	return nil
}

// messageList acepta [{codigo, valor}], ["texto"] o "texto".
type messageList []entity.Message

func (m *messageList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s != "" {
			*m = messageList{{Value: s}}
		}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(messageList, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				return err
			}
			out = append(out, entity.Message{Value: s})
			continue
		}
		var msg struct {
			Code  flexInt `json:"codigo"`
			Value string  `json:"valor"`
		}
		if err := json.Unmarshal(item, &msg); err != nil {
			return err
		}
		out = append(out, entity.Message{Code: int(msg.Code), Value: msg.Value})
	}
	*m = out
	return nil
}

func (m messageList) values() []string {
	out := make([]string, 0, len(m))
	for _, msg := range m {
		out = append(out, msg.String())
	}
	return out
}

// ── Fechas ────────────────────────────────────────────────────────────────────

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	ecf.DateTimeLayout,
}

// parseTime interpreta las fechas del gateway; las que no traen zona se toman en hora dominicana.
// Un formato desconocido produce el instante cero.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, ecf.SantoDomingo); err == nil {
			return t
		}
	}
	return time.Time{}
}
