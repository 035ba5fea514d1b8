package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TrackStatus disposición de un documento enviado.
type TrackStatus string

const (
	StatusInProcess           TrackStatus = "IN_PROCESS"
	StatusAccepted            TrackStatus = "ACCEPTED"
	StatusConditionalAccepted TrackStatus = "CONDITIONAL_ACCEPTED"
	StatusRejected            TrackStatus = "REJECTED"
)

// Etiquetas que devuelve la DGII en el campo "estado".
const (
	LabelInProcess           = "En Proceso"
	LabelAccepted            = "Aceptado"
	LabelConditionalAccepted = "Aceptado Condicional"
	LabelRejected            = "Rechazado"
	LabelNotFound            = "No encontrado"
)

// Códigos numéricos de la DGII ("codigo") para el estado de un comprobante.
const (
	CodeNotFound            = 0
	CodeAccepted            = 1
	CodeRejected            = 2
	CodeInProcess           = 3
	CodeConditionalAccepted = 4
)

var statusByLabel = map[string]TrackStatus{
	"en proceso":           StatusInProcess,
	"enproceso":            StatusInProcess,
	"aceptado":             StatusAccepted,
	"aceptado condicional": StatusConditionalAccepted,
	"rechazado":            StatusRejected,
}

var statusByCode = map[int]TrackStatus{
	CodeAccepted:            StatusAccepted,
	CodeRejected:            StatusRejected,
	CodeInProcess:           StatusInProcess,
	CodeConditionalAccepted: StatusConditionalAccepted,
}

// ErrUnknownStatus estado no reconocido: es una violación de protocolo, nunca se coerciona.
type ErrUnknownStatus struct {
	Label string
}

func (e *ErrUnknownStatus) Error() string {
	return fmt.Sprintf("estado de la DGII no reconocido: %q", e.Label)
}

// ParseTrackStatus traduce la etiqueta de la DGII. Tolera mayúsculas y espacios extra.
func ParseTrackStatus(label string) (TrackStatus, error) {
	key := strings.ToLower(strings.Join(strings.Fields(label), " "))
	if s, ok := statusByLabel[key]; ok {
		return s, nil
	}
	return "", &ErrUnknownStatus{Label: label}
}

// TrackStatusFromCode traduce el código numérico de la DGII.
func TrackStatusFromCode(code int) (TrackStatus, bool) {
	s, ok := statusByCode[code]
	return s, ok
}

// IsNotFoundLabel indica si el estado textual de la DGII significa "no encontrado".
func IsNotFoundLabel(label string) bool {
	return strings.Contains(strings.ToLower(label), "no encontrado")
}

// Valid indica si es uno de los cuatro estados.
func (s TrackStatus) Valid() bool {
	switch s {
	case StatusInProcess, StatusAccepted, StatusConditionalAccepted, StatusRejected:
		return true
	}
	return false
}

// Terminal indica si el estado ya no cambia.
func (s TrackStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusConditionalAccepted || s == StatusRejected
}

// CanTransitionTo valida la transición observada IN_PROCESS → terminal. Repetir el mismo estado siempre es válido.
func (s TrackStatus) CanTransitionTo(next TrackStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next || s == "" {
		return true
	}
	return s == StatusInProcess
}

// Label etiqueta de la DGII.
func (s TrackStatus) Label() string {
	switch s {
	case StatusInProcess:
		return LabelInProcess
	case StatusAccepted:
		return LabelAccepted
	case StatusConditionalAccepted:
		return LabelConditionalAccepted
	case StatusRejected:
		return LabelRejected
	}
	return string(s)
}

// Message mensaje de validación de la DGII.
type Message struct {
	Code  int    `json:"codigo"`
	Value string `json:"valor"`
}

func (m Message) String() string {
	if m.Code == 0 {
		return m.Value
	}
	return fmt.Sprintf("%d: %s", m.Code, m.Value)
}

// TrackingRecord disposición de la DGII para un documento enviado.
type TrackingRecord struct {
	TrackID      string
	Status       TrackStatus
	Code         int
	IssuerRNC    string
	ENCF         string
	SequenceUsed bool
	ReceivedAt   time.Time
	Messages     []Message
}

// SummaryInquiryResult resultado de la consulta de estado de un resumen (tipo 32).
// El llamador compara SecurityCode y TotalAmount con lo enviado; el núcleo no impone igualdad.
type SummaryInquiryResult struct {
	Status       TrackStatus
	Code         int
	IssuerRNC    string
	ENCF         string
	BuyerRNC     string
	SecurityCode string
	TotalAmount  decimal.Decimal
	TotalITBIS   decimal.Decimal
	IssueDate    string
	SignedAt     string
}

// MatchesSubmission compara el resultado con el código de seguridad y monto enviados.
func (r *SummaryInquiryResult) MatchesSubmission(securityCode string, total decimal.Decimal) bool {
	return r != nil && r.SecurityCode == securityCode && r.TotalAmount.Equal(total)
}
