package transformer_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/transformer"
)

func TestJSONToXML_ConservaOrdenYRepite(t *testing.T) {
	in := `{
	  "ECF": {
	    "Encabezado": {
	      "Version": "1.0",
	      "IdDoc": {"TipoeCF": 31, "eNCF": "E310000000001", "IndicadorMontoGravado": 0},
	      "Emisor": {"RNCEmisor": "131880681", "TablaTelefonoEmisor": {"TelefonoEmisor": ["809-472-7676", "809-491-1918"]}},
	      "Comprador": null
	    },
	    "DetallesItems": {"Item": [
	      {"NumeroLinea": 1, "MontoItem": 1000.00},
	      {"NumeroLinea": 2, "MontoItem": 180.50}
	    ]},
	    "FechaHoraFirma": "09-03-2025 14:05:07"
	  }
	}`

	out, err := transformer.JSONBytesToXML([]byte(in))
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, `<?xml version="1.0" encoding="utf-8"?>`))
	assert.Contains(t, s, `<IdDoc><TipoeCF>31</TipoeCF><eNCF>E310000000001</eNCF><IndicadorMontoGravado>0</IndicadorMontoGravado></IdDoc>`)
	assert.Contains(t, s, `<TablaTelefonoEmisor><TelefonoEmisor>809-472-7676</TelefonoEmisor><TelefonoEmisor>809-491-1918</TelefonoEmisor></TablaTelefonoEmisor>`)
	assert.Contains(t, s, `<MontoItem>1000.00</MontoItem>`, "los números se copian tal cual")
	assert.NotContains(t, s, "Comprador")
	assert.Less(t, strings.Index(s, "<Encabezado>"), strings.Index(s, "<DetallesItems>"))
	assert.Less(t, strings.Index(s, "<DetallesItems>"), strings.Index(s, "<FechaHoraFirma>"))
	assert.Equal(t, 2, strings.Count(s, "<Item>"))
}

func TestJSONToXML_AtributosYTexto(t *testing.T) {
	in := `{"RFCE": {"@xmlns:xsi": "http://www.w3.org/2001/XMLSchema-instance", "Nota": {"@tipo": "A", "#text": "hola & adiós"}, "Activo": true}}`

	out, err := transformer.JSONBytesToXML([]byte(in))
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `<RFCE xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`)
	assert.Contains(t, s, `<Nota tipo="A">hola &amp; adiós</Nota>`)
	assert.Contains(t, s, `<Activo>true</Activo>`)
}

func TestJSONToXML_Invalidos(t *testing.T) {
	cases := map[string]string{
		"no es objeto":    `["ECF"]`,
		"dos raíces":      `{"ECF": {}, "RFCE": {}}`,
		"raíz arreglo":    `{"ECF": [{}, {}]}`,
		"nombre inválido": `{"ECF": {"1Campo": "x"}}`,
		"atributo objeto": `{"ECF": {"@a": {}}}`,
		"texto objeto":    `{"ECF": {"#text": []}}`,
		"json truncado":   `{"ECF": {"A": `,
		"basura al final": `{"ECF": {}} {}`,
		"sin raíz":        `{}`,
	}
	for name, in := range cases {
		_, err := transformer.JSONBytesToXML([]byte(in))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, transformer.ErrInvalidDocument), name)
	}
}
