package dgii

import (
	"strings"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

// ── URLs base por ambiente ─────────────────────────────────────────────────────

const (
	ecfHost       = "https://ecf.dgii.gov.do/"
	fcHost        = "https://fc.dgii.gov.do/"
	statusURLProd = "https://statusecf.dgii.gov.do/api/estatusservicios/obtenerestatus"
)

// ── Rutas relativas a las URLs base ───────────────────────────────────────────

const (
	pathAuth             = "/autenticacion"
	pathSeed             = "/api/autenticacion/semilla"
	pathValidateSeed     = "/api/autenticacion/validarsemilla"
	pathReception        = "/recepcion/api/facturaselectronicas"
	pathSummaryReception = "/recepcionfc/api/recepcion/ecf"
	pathTrackResult      = "/consultaresultado/api/consultas/estado"
	pathTrackIDs         = "/consultatrackids/api/trackids/consulta"
	pathInquiry          = "/consultaestado/api/consultas/estado"
	pathDirectoryByRNC   = "/consultadirectorio/api/consultas/obtenerdirectorioporrnc"
	pathDirectoryList    = "/consultadirectorio/api/consultas/listado"
	pathApproval         = "/aprobacioncomercial/api/aprobacioncomercial"
	pathVoid             = "/anulacionrangos/api/operaciones/anularrango"
)

// Endpoints URLs base del gateway. ECF y FC ya incluyen el segmento del ambiente
// (ej. https://ecf.dgii.gov.do/testecf).
type Endpoints struct {
	ECF    string
	FC     string
	Status string
}

// EndpointsFor URLs oficiales de la DGII para el ambiente.
func EndpointsFor(env entity.Environment) Endpoints {
	seg := env.PathSegment()
	return Endpoints{
		ECF:    ecfHost + seg,
		FC:     fcHost + seg,
		Status: statusURLProd,
	}
}

// WithOverrides reemplaza las URLs no vacías (proxies, stubs de prueba).
func (e Endpoints) WithOverrides(ecfURL, fcURL, statusURL string) Endpoints {
	if ecfURL != "" {
		e.ECF = ecfURL
	}
	if fcURL != "" {
		e.FC = fcURL
	}
	if statusURL != "" {
		e.Status = statusURL
	}
	return e.normalized()
}

func (e Endpoints) normalized() Endpoints {
	e.ECF = strings.TrimRight(e.ECF, "/")
	e.FC = strings.TrimRight(e.FC, "/")
	return e
}

// AuthURL base de autenticación del emisor ({ecf}/autenticacion).
func (e Endpoints) AuthURL() string { return e.ECF + pathAuth }
