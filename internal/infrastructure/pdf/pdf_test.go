package pdf

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/internal/testutil"
)

const invoiceXML = `<?xml version="1.0" encoding="utf-8"?>
<ECF><Encabezado><IdDoc><TipoeCF>31</TipoeCF><eNCF>E310000000001</eNCF></IdDoc>
<Emisor><RNCEmisor>131880681</RNCEmisor><RazonSocialEmisor>DOCUMENTOS ELECTRONICOS DE 02</RazonSocialEmisor>
<DireccionEmisor>AVE. ISABEL AGUIAR NO. 269</DireccionEmisor><FechaEmision>01-04-2020</FechaEmision></Emisor>
<Comprador><RNCComprador>101010632</RNCComprador><RazonSocialComprador>CLIENTE DE PRUEBA</RazonSocialComprador></Comprador>
<Totales><MontoGravadoTotal>1000.00</MontoGravadoTotal><TotalITBIS>180.00</TotalITBIS><MontoTotal>1180.00</MontoTotal></Totales></Encabezado>
<DetallesItems>
<Item><NumeroLinea>1</NumeroLinea><NombreItem>Servicio A</NombreItem><CantidadItem>2</CantidadItem><PrecioUnitarioItem>250.00</PrecioUnitarioItem><MontoItem>500.00</MontoItem></Item>
<Item><NumeroLinea>2</NumeroLinea><NombreItem>Servicio B</NombreItem><CantidadItem>1</CantidadItem><PrecioUnitarioItem>500.00</PrecioUnitarioItem><MontoItem>500.00</MontoItem></Item>
</DetallesItems>
<FechaHoraFirma>01-04-2020 10:15:30</FechaHoraFirma></ECF>`

func signed(t *testing.T, xml, root string) []byte {
	t.Helper()
	out, err := signer.NewDigitalSignatureService(testutil.NewCredential(t)).Sign([]byte(xml), root)
	require.NoError(t, err)
	return out
}

func TestFromSignedXML(t *testing.T) {
	doc := signed(t, invoiceXML, entity.RootECF)

	rep, err := FromSignedXML(doc)
	require.NoError(t, err)
	assert.Equal(t, entity.DocTypeCreditoFiscal, rep.Type)
	assert.Equal(t, "E310000000001", rep.ENCF)
	assert.Equal(t, "131880681", rep.IssuerRNC)
	assert.Equal(t, "CLIENTE DE PRUEBA", rep.BuyerName)
	assert.Equal(t, "01-04-2020", rep.IssueDate.Format("02-01-2006"))
	assert.True(t, rep.TotalAmount.Equal(decimal.RequireFromString("1180")))
	assert.True(t, rep.TotalITBIS.Equal(decimal.RequireFromString("180")))
	require.Len(t, rep.Lines, 2)
	assert.Equal(t, "Servicio B", rep.Lines[1].Name)
	assert.Equal(t, 2, rep.Lines[1].Number)

	code, err := signer.SecurityCode(doc)
	require.NoError(t, err)
	assert.Equal(t, code, rep.SecurityCode)
}

func TestFromSignedXML_SinFirma(t *testing.T) {
	_, err := FromSignedXML([]byte(invoiceXML))
	assert.Error(t, err)

	_, err = FromSignedXML([]byte(`<SemillaModel><valor>x</valor></SemillaModel>`))
	assert.Error(t, err)
}

func TestTimbreURL(t *testing.T) {
	rep, err := FromSignedXML(signed(t, invoiceXML, entity.RootECF))
	require.NoError(t, err)

	u := rep.TimbreURL("https://ecf.dgii.gov.do/testecf", "https://fc.dgii.gov.do/testecf")
	assert.True(t, strings.HasPrefix(u, "https://ecf.dgii.gov.do/testecf/ConsultaTimbre?RncEmisor=131880681&RncComprador=101010632&ENCF=E310000000001"))
	assert.Contains(t, u, "MontoTotal=1180.00")
	assert.Contains(t, u, "CodigoSeguridad="+rep.SecurityCode)

	rep.Type = entity.DocTypeConsumo
	u = rep.TimbreURL("https://ecf.dgii.gov.do/testecf", "https://fc.dgii.gov.do/testecf")
	assert.True(t, strings.HasPrefix(u, "https://fc.dgii.gov.do/testecf/ConsultaTimbreFC?"))

	rep.TotalAmount = decimal.NewFromInt(300000)
	u = rep.TimbreURL("https://ecf.dgii.gov.do/testecf", "https://fc.dgii.gov.do/testecf")
	assert.True(t, strings.HasPrefix(u, "https://ecf.dgii.gov.do/testecf/ConsultaTimbre?"))
}

func TestGenerateFromSignedXML(t *testing.T) {
	g := NewMarotoPDFGenerator("https://ecf.dgii.gov.do/testecf", "https://fc.dgii.gov.do/testecf")
	out, err := g.GenerateFromSignedXML(context.Background(), signed(t, invoiceXML, entity.RootECF))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, &Representation{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "RD$0.00", formatMoney(decimal.Zero))
	assert.Equal(t, "RD$590.00", formatMoney(decimal.RequireFromString("590")))
	assert.Equal(t, "RD$1,180.50", formatMoney(decimal.RequireFromString("1180.5")))
	assert.Equal(t, "RD$1,234,567.89", formatMoney(decimal.RequireFromString("1234567.891")))
	assert.Equal(t, "-RD$25,000.00", formatMoney(decimal.NewFromInt(-25000)))
}
