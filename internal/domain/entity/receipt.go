package entity

// SubmissionReceipt respuesta de la recepción de un e-CF.
type SubmissionReceipt struct {
	TrackID string
	Error   string
	Message string
}

// SummaryReceipt respuesta de la recepción de un resumen RFCE. La DGII resuelve el resumen
// de forma síncrona, por eso incluye estado y código.
type SummaryReceipt struct {
	TrackID      string
	Code         int
	Status       TrackStatus
	ENCF         string
	SequenceUsed bool
	Messages     []Message
}

// ApprovalReceipt respuesta a una aprobación comercial (ARECF).
type ApprovalReceipt struct {
	Status   string
	Messages []string
}

// VoidReceipt respuesta a una anulación de secuencias (ANECF).
type VoidReceipt struct {
	RNC      string
	Code     string
	Name     string
	Messages []string
}
