package ecf

import "time"

// Formatos de fecha usados por la DGII en los XML y en la URL del timbre.
const (
	DateLayout     = "02-01-2006"
	DateTimeLayout = "02-01-2006 15:04:05"
)

// SantoDomingo zona horaria de República Dominicana (UTC-4, sin horario de verano).
// Se fija en lugar de time.LoadLocation para no depender de tzdata en el contenedor.
var SantoDomingo = time.FixedZone("AST", -4*60*60)

// FormatDate fecha dd-MM-yyyy en hora local dominicana.
func FormatDate(t time.Time) string {
	return t.In(SantoDomingo).Format(DateLayout)
}

// FormatDateTime fecha y hora dd-MM-yyyy HH:mm:ss en hora local dominicana.
func FormatDateTime(t time.Time) string {
	return t.In(SantoDomingo).Format(DateTimeLayout)
}

// CurrentFormattedDate fecha y hora actual en el formato de FechaFirma.
func CurrentFormattedDate() string {
	return FormatDateTime(time.Now())
}
