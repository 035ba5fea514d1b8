package dto

// ErrorResponse cuerpo de error HTTP. AuthorityCode y Details solo vienen cuando el error
// lo reportó la DGII.
type ErrorResponse struct {
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	AuthorityCode int      `json:"authority_code,omitempty"`
	Details       []string `json:"details,omitempty"`
}
