package entity

// DirectoryEntry endpoints publicados por un contribuyente receptor de e-CF.
type DirectoryEntry struct {
	Name          string `json:"nombre"`
	RNC           string `json:"rnc"`
	AcceptanceURL string `json:"urlAceptacion"`
	ReceptionURL  string `json:"urlRecepcion"`
	AuthURL       string `json:"urlOpcional,omitempty"`
}

// ServiceStatus estatus de un servicio del gateway.
type ServiceStatus struct {
	Service     string `json:"servicio"`
	Status      string `json:"estatus"`
	Environment string `json:"ambiente"`
}
