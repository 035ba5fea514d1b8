package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

// ── Auth de la API local ──────────────────────────────────────────────────────

// TokenRequest body para POST /api/auth/token.
type TokenRequest struct {
	APIKey   string `json:"api_key"`
	ClientID string `json:"client_id"`
	Role     string `json:"role,omitempty"` // emisor (por defecto) | consulta
}

// TokenResponse token de acceso a la API.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // segundos
}

// ── Sesión DGII ───────────────────────────────────────────────────────────────

// SessionRequest body para POST /api/ecf/session.
type SessionRequest struct {
	AlternateURL string `json:"alternate_url,omitempty"`
}

// SessionResponse sesión activa contra la DGII. El token no se expone.
type SessionResponse struct {
	Endpoint    string    `json:"endpoint"`
	Environment string    `json:"environment"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// FromSession mapea la sesión de dominio.
func FromSession(s *entity.Session) SessionResponse {
	return SessionResponse{
		Endpoint:    s.Endpoint,
		Environment: string(s.Environment),
		IssuedAt:    s.IssuedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}

// ── Firma y envíos ────────────────────────────────────────────────────────────

// SignRequest body para POST /api/ecf/sign.
type SignRequest struct {
	Root string `json:"root"`
	XML  string `json:"xml"`
}

// SignResponse XML firmado.
type SignResponse struct {
	SignedXML    string `json:"signed_xml"`
	SecurityCode string `json:"security_code,omitempty"`
}

// SubmitRequest body para POST /api/ecf/documents. Se acepta el XML sin firmar o el
// documento en JSON (se convierte a XML conservando el orden de los campos).
type SubmitRequest struct {
	RNC      string          `json:"rnc"`
	ENCF     string          `json:"encf"`
	XML      string          `json:"xml,omitempty"`
	Document json.RawMessage `json:"document,omitempty" swaggertype:"object"`
}

// SubmitResponse resultado del envío.
type SubmitResponse struct {
	ENCF         string          `json:"encf"`
	FileName     string          `json:"file_name"`
	SecurityCode string          `json:"security_code"`
	TrackID      string          `json:"track_id,omitempty"`
	Summary      *SummaryReceipt `json:"summary,omitempty"`
	SignedXML    string          `json:"signed_xml"`
}

// UploadRequest body para los envíos de XML ya firmados.
type UploadRequest struct {
	FileName string `json:"file_name"`
	XML      string `json:"xml"`
}

// ReceiptResponse acuse de recepción de un e-CF.
type ReceiptResponse struct {
	TrackID string `json:"track_id"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// SummaryReceipt acuse de un resumen RFCE.
type SummaryReceipt struct {
	TrackID      string    `json:"track_id,omitempty"`
	Code         int       `json:"code"`
	Status       string    `json:"status"`
	ENCF         string    `json:"encf,omitempty"`
	SequenceUsed bool      `json:"sequence_used"`
	Messages     []Message `json:"messages,omitempty"`
}

// ApprovalResponse respuesta a una aprobación comercial.
type ApprovalResponse struct {
	Status   string   `json:"status"`
	Messages []string `json:"messages,omitempty"`
}

// VoidResponse respuesta a una anulación de secuencias.
type VoidResponse struct {
	RNC      string   `json:"rnc"`
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Messages []string `json:"messages,omitempty"`
}

// Message mensaje de validación de la DGII.
type Message struct {
	Code  int    `json:"code,omitempty"`
	Value string `json:"value"`
}

// FromSummaryReceipt mapea el acuse de dominio.
func FromSummaryReceipt(r *entity.SummaryReceipt) *SummaryReceipt {
	if r == nil {
		return nil
	}
	return &SummaryReceipt{
		TrackID:      r.TrackID,
		Code:         r.Code,
		Status:       r.Status.Label(),
		ENCF:         r.ENCF,
		SequenceUsed: r.SequenceUsed,
		Messages:     fromMessages(r.Messages),
	}
}

// ── Consultas ─────────────────────────────────────────────────────────────────

// TrackingResponse disposición de un envío.
type TrackingResponse struct {
	TrackID      string     `json:"track_id"`
	Status       string     `json:"status"`
	Label        string     `json:"label"`
	Code         int        `json:"code,omitempty"`
	IssuerRNC    string     `json:"rnc,omitempty"`
	ENCF         string     `json:"encf,omitempty"`
	SequenceUsed bool       `json:"sequence_used"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
	Terminal     bool       `json:"terminal"`
	Messages     []Message  `json:"messages,omitempty"`
}

// FromTrackingRecord mapea un registro de seguimiento.
func FromTrackingRecord(r entity.TrackingRecord) TrackingResponse {
	out := TrackingResponse{
		TrackID:      r.TrackID,
		Status:       string(r.Status),
		Label:        r.Status.Label(),
		Code:         r.Code,
		IssuerRNC:    r.IssuerRNC,
		ENCF:         r.ENCF,
		SequenceUsed: r.SequenceUsed,
		Terminal:     r.Status.Terminal(),
		Messages:     fromMessages(r.Messages),
	}
	if !r.ReceivedAt.IsZero() {
		t := r.ReceivedAt
		out.ReceivedAt = &t
	}
	return out
}

// InquiryResponse resultado de la consulta de un resumen.
type InquiryResponse struct {
	Status       string          `json:"status"`
	Label        string          `json:"label"`
	Code         int             `json:"code"`
	IssuerRNC    string          `json:"rnc"`
	ENCF         string          `json:"encf"`
	BuyerRNC     string          `json:"buyer_rnc,omitempty"`
	SecurityCode string          `json:"security_code"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	TotalITBIS   decimal.Decimal `json:"total_itbis"`
	IssueDate    string          `json:"issue_date,omitempty"`
	SignedAt     string          `json:"signed_at,omitempty"`
}

// FromInquiry mapea el resultado de la consulta.
func FromInquiry(r *entity.SummaryInquiryResult) InquiryResponse {
	return InquiryResponse{
		Status:       string(r.Status),
		Label:        r.Status.Label(),
		Code:         r.Code,
		IssuerRNC:    r.IssuerRNC,
		ENCF:         r.ENCF,
		BuyerRNC:     r.BuyerRNC,
		SecurityCode: r.SecurityCode,
		TotalAmount:  r.TotalAmount,
		TotalITBIS:   r.TotalITBIS,
		IssueDate:    r.IssueDate,
		SignedAt:     r.SignedAt,
	}
}

// RepresentationRequest body para POST /api/ecf/representation.
type RepresentationRequest struct {
	SignedXML string `json:"signed_xml"`
}

func fromMessages(in []entity.Message) []Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]Message, 0, len(in))
	for _, m := range in {
		out = append(out, Message{Code: m.Code, Value: m.Value})
	}
	return out
}
