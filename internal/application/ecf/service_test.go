package ecf_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-dgii/internal/application/ecf"
	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/internal/testutil"
)

const invoiceXML = `<?xml version="1.0" encoding="utf-8"?>
<ECF><Encabezado><IdDoc><TipoeCF>31</TipoeCF><eNCF>E310000000001</eNCF></IdDoc>
<Emisor><RNCEmisor>131880681</RNCEmisor></Emisor><Totales><MontoTotal>1180.00</MontoTotal></Totales></Encabezado></ECF>`

func summaryXML(tipoIngresos string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<RFCE><Encabezado><IdDoc><TipoeCF>32</TipoeCF><eNCF>E320000000007</eNCF><TipoIngresos>` + tipoIngresos + `</TipoIngresos></IdDoc>
<Emisor><RNCEmisor>131880681</RNCEmisor></Emisor><Comprador><RNCComprador>101010632</RNCComprador></Comprador>
<Totales><MontoTotal>590.00</MontoTotal></Totales><CodigoSeguridadeCF>Ab12Cd</CodigoSeguridadeCF></Encabezado></RFCE>`
}

type fixture struct {
	gw   *testutil.FakeGateway
	svc  *ecf.Service
	cred *entity.Credential
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := testutil.NewFakeGateway(t)
	cred := testutil.NewCredential(t)
	gw.VerifySignature = testutil.XMLDSigVerifier(cred.Certificate)
	endpoints := dgii.EndpointsFor(entity.EnvironmentDev).WithOverrides(gw.ECFBaseURL(), gw.FCBaseURL(), gw.StatusURL())
	client := dgii.NewClient(cred, entity.EnvironmentDev,
		dgii.WithEndpoints(endpoints),
		dgii.WithRootCAs(gw.RootCAs()),
		dgii.WithTimeout(5*time.Second),
	)
	svc := ecf.NewService(client, signer.NewDigitalSignatureService(cred), cred, entity.EnvironmentDev)
	return &fixture{gw: gw, svc: svc, cred: cred}
}

func (f *fixture) authenticate(t *testing.T) *entity.Session {
	t.Helper()
	sess, err := f.svc.Authenticate(context.Background(), "")
	require.NoError(t, err)
	return sess
}

// countingGateway falla la prueba si se llama a cualquier método no sobrescrito.
type countingGateway struct {
	ecf.Gateway
	seedCalls int
	seedErr   error
}

func (g *countingGateway) Seed(context.Context, string) ([]byte, error) {
	g.seedCalls++
	return nil, g.seedErr
}

// ── Autenticación ─────────────────────────────────────────────────────────────

func TestAuthenticate_CredencialNoUtilizableNoTocaLaRed(t *testing.T) {
	gw := &countingGateway{}
	cred := &entity.Credential{}
	svc := ecf.NewService(gw, signer.NewDigitalSignatureService(cred), cred, entity.EnvironmentDev)

	sess, err := svc.Authenticate(context.Background(), "")
	require.Error(t, err)
	assert.Nil(t, sess)
	assert.True(t, errors.Is(err, domain.ErrCredential))
	assert.Zero(t, gw.seedCalls)
	assert.Nil(t, svc.Session())
}

func TestAuthenticate_FallaDeRedEsErrorDeAutenticacion(t *testing.T) {
	gw := &countingGateway{seedErr: domain.E(domain.KindTransport, "dgii.Seed", errors.New("connection refused"))}
	cred := testutil.NewCredential(t)
	svc := ecf.NewService(gw, signer.NewDigitalSignatureService(cred), cred, entity.EnvironmentDev)

	_, err := svc.Authenticate(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthentication))
	assert.False(t, errors.Is(err, domain.ErrTransport), "un solo Kind por error")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, gw.seedCalls)
	assert.Nil(t, svc.Session(), "nunca queda una sesión parcial")
}

func TestAuthenticate_401DeLaSemillaNoEsSesionExpirada(t *testing.T) {
	gw := &countingGateway{seedErr: &domain.Error{Kind: domain.KindSessionExpired, Op: "dgii.Seed", Status: http.StatusUnauthorized}}
	cred := testutil.NewCredential(t)
	svc := ecf.NewService(gw, signer.NewDigitalSignatureService(cred), cred, entity.EnvironmentDev)

	_, err := svc.Authenticate(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthentication))
	assert.False(t, errors.Is(err, domain.ErrSessionExpired))
	assert.Equal(t, domain.KindAuthentication, domain.KindOf(err))
	assert.Equal(t, http.StatusUnauthorized, domain.StatusOf(err))
}

func TestAuthenticate_GuardaSesionYAdjuntaBearer(t *testing.T) {
	f := newFixture(t)
	sess := f.authenticate(t)

	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, entity.EnvironmentDev, sess.Environment)
	assert.Equal(t, sess.Token, f.svc.Session().Token)
	assert.True(t, f.gw.ClientCertSeen(), "el handshake presenta el certificado del emisor")

	_, err := f.svc.Submit(context.Background(), entity.DocumentEnvelope{
		IssuerRNC: "131880681", ENCF: "E310000000001", XML: []byte(invoiceXML),
	})
	require.NoError(t, err)
	ups := f.gw.Uploads()
	require.Len(t, ups, 1)
	assert.Equal(t, "Bearer "+sess.Token, ups[0].Authorization)
}

func TestAuthenticate_URLAlterna(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Authenticate(context.Background(), f.gw.BuyerAuthURL())
	require.NoError(t, err)
	assert.Equal(t, f.gw.BuyerAuthURL(), sess.Endpoint)
}

func TestWithSession_NoAfectaAlOriginal(t *testing.T) {
	f := newFixture(t)
	derived := f.svc.WithSession(&entity.Session{Token: "otro"})

	assert.Nil(t, f.svc.Session())
	assert.Equal(t, "otro", derived.Session().Token)

	sess := f.authenticate(t)
	assert.Equal(t, "otro", derived.Session().Token)
	assert.Equal(t, sess.Token, f.svc.Session().Token)
}

// ── Envíos ────────────────────────────────────────────────────────────────────

func TestSend_SinSesionNoEnvia(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SendElectronicDocument(context.Background(), []byte(invoiceXML), "a.xml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthentication))
	assert.Empty(t, f.gw.Uploads())
}

func TestSend_EntradasInvalidas(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)
	ctx := context.Background()

	_, err := f.svc.SendElectronicDocument(ctx, []byte(invoiceXML), "  ")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = f.svc.SendSummary(ctx, nil, "r.xml")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = f.svc.StatusByTrackID(ctx, "")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = f.svc.CustomerDirectory(ctx, " ")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = f.svc.Sign([]byte(invoiceXML), "")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Empty(t, f.gw.Uploads())
}

func TestSubmit_FacturaFirmadaYRastreable(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)
	ctx := context.Background()

	original := []byte(invoiceXML)
	res, err := f.svc.Submit(ctx, entity.DocumentEnvelope{IssuerRNC: "131-88068-1", ENCF: "e310000000001", XML: original})
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)
	assert.Nil(t, res.Summary)
	assert.NotEmpty(t, res.Receipt.TrackID)
	assert.Equal(t, invoiceXML, string(original), "el sobre de entrada no se modifica")

	env := res.Envelope
	assert.Equal(t, "131880681E310000000001.xml", env.FileName())
	require.NoError(t, signer.Verify(env.SignedXML, f.cred.Certificate))
	code, err := signer.SecurityCode(env.SignedXML)
	require.NoError(t, err)
	assert.Equal(t, code, env.SecurityCode)
	assert.Len(t, env.SecurityCode, 6)

	ups := f.gw.Uploads()
	require.Len(t, ups, 1)
	assert.Equal(t, "131880681E310000000001.xml", ups[0].FileName)
	assert.Equal(t, 1, bytes.Count(ups[0].Body, []byte("<Signature xmlns=")))

	rec, err := f.svc.StatusByTrackID(ctx, res.Receipt.TrackID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusInProcess, rec.Status)
	assert.Equal(t, "E310000000001", rec.ENCF)

	rec, err = f.svc.Refresh(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, rec.Status)
	assert.True(t, rec.Status.Terminal())

	recs, err := f.svc.StatusesByBusinessKey(ctx, "131880681", "E310000000001")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, res.Receipt.TrackID, recs[0].TrackID)
	assert.True(t, recs[0].Status.Valid())
}

func TestSubmit_EnvelopeInvalido(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)
	ctx := context.Background()

	cases := map[string]entity.DocumentEnvelope{
		"eNCF corto":   {IssuerRNC: "131880681", ENCF: "E31", XML: []byte(invoiceXML)},
		"tipo 99":      {IssuerRNC: "131880681", ENCF: "E990000000001", XML: []byte(invoiceXML)},
		"RNC inválido": {IssuerRNC: "131880682", ENCF: "E310000000001", XML: []byte(invoiceXML)},
		"sin XML":      {IssuerRNC: "131880681", ENCF: "E310000000001"},
	}
	for name, env := range cases {
		_, err := f.svc.Submit(ctx, env)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput), name)
	}
	assert.Empty(t, f.gw.Uploads())
}

func TestSubmit_RaizQueNoCorrespondeAlTipo(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)

	// Un e-NCF tipo 32 exige raíz RFCE; el XML trae ECF.
	_, err := f.svc.Submit(context.Background(), entity.DocumentEnvelope{
		IssuerRNC: "131880681", ENCF: "E320000000007", XML: []byte(invoiceXML),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSigning))
	assert.Empty(t, f.gw.Uploads())
}

func TestSubmit_ResumenYConsulta(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, entity.DocumentEnvelope{
		IssuerRNC: "131880681", ENCF: "E320000000007", XML: []byte(summaryXML("01")),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Summary)
	assert.Nil(t, res.Receipt)
	assert.Equal(t, entity.StatusAccepted, res.Summary.Status)
	assert.Equal(t, "Ab12Cd", res.Envelope.SecurityCode, "el resumen conserva el código declarado")
	assert.True(t, strings.HasSuffix(f.gw.Uploads()[0].Path, "/recepcionfc/api/recepcion/ecf"))

	inq, err := f.svc.InquirySummary(ctx, "131880681", "E320000000007", "101010632", res.Envelope.SecurityCode)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, inq.Status)
	assert.Equal(t, "Ab12Cd", inq.SecurityCode)
	assert.True(t, inq.MatchesSubmission("Ab12Cd", decimal.RequireFromString("590")))
}

func TestSubmit_ResumenRechazadoConservaDocumentoFirmado(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)

	res, err := f.svc.Submit(context.Background(), entity.DocumentEnvelope{
		IssuerRNC: "131880681", ENCF: "E320000000007", XML: []byte(summaryXML("1")),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidationRejection))
	assert.Equal(t, 2, domain.AuthorityCode(err))

	var de *domain.Error
	require.True(t, errors.As(err, &de))
	require.NotEmpty(t, de.Messages)
	assert.Contains(t, de.Messages[0].Value, "TipoIngresos")

	require.NotNil(t, res)
	assert.NotEmpty(t, res.Envelope.SignedXML)
	assert.Nil(t, res.Summary)
}

// ── Consultas ─────────────────────────────────────────────────────────────────

func TestStatusesByBusinessKey_Desconocido(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)

	recs, err := f.svc.StatusesByBusinessKey(context.Background(), "131880681", "E310000009999")
	require.Error(t, err)
	assert.Empty(t, recs)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.False(t, errors.Is(err, domain.ErrTransport))
}

func TestRefresh_TransicionInvalida(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)
	ctx := context.Background()

	f.gw.SetInitialStatus("Aceptado")
	res, err := f.svc.Submit(ctx, entity.DocumentEnvelope{IssuerRNC: "131880681", ENCF: "E310000000002", XML: []byte(
		strings.Replace(invoiceXML, "E310000000001", "E310000000002", 1))})
	require.NoError(t, err)

	rec, err := f.svc.StatusByTrackID(ctx, res.Receipt.TrackID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusAccepted, rec.Status)

	f.gw.SetStatusSequence(rec.TrackID, "Rechazado")
	_, err = f.svc.Refresh(ctx, rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProtocol))

	_, err = f.svc.Refresh(ctx, nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestTokenRevocado_SesionExpirada(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)
	f.gw.RevokeTokens()

	_, err := f.svc.StatusesByBusinessKey(context.Background(), "131880681", "E310000000001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSessionExpired))
	assert.Equal(t, http.StatusUnauthorized, domain.StatusOf(err))

	// Re-autenticar restablece el acceso.
	f.authenticate(t)
	_, err = f.svc.StatusesByBusinessKey(context.Background(), "131880681", "E310000000001")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDirectory_RequiereSesion(t *testing.T) {
	gw := &countingGateway{}
	cred := testutil.NewCredential(t)
	svc := ecf.NewService(gw, signer.NewDigitalSignatureService(cred), cred, entity.EnvironmentDev)
	ctx := context.Background()

	_, err := svc.CustomerDirectory(ctx, "131880681")
	assert.True(t, errors.Is(err, domain.ErrAuthentication))
	_, err = svc.ListDirectory(ctx)
	assert.True(t, errors.Is(err, domain.ErrAuthentication))
}

func TestCustomerDirectory_DGII(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)
	ctx := context.Background()

	entries, err := f.svc.CustomerDirectory(ctx, "131880681")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "DGII", entries[0].Name)
	assert.Equal(t, "https://ecf.dgii.gov.do/testecf/emisorreceptor", entries[0].ReceptionURL)
	assert.Equal(t, "https://ecf.dgii.gov.do/testecf/emisorreceptor", entries[0].AcceptanceURL)

	all, err := f.svc.ListDirectory(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	status, err := f.svc.ServiceStatus(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, status)
}

type inquiryGateway struct {
	ecf.Gateway
	gotBuyer, gotCode string
}

func (g *inquiryGateway) Inquiry(_ context.Context, _ *entity.Session, _, _, buyerRNC, securityCode string) (*entity.SummaryInquiryResult, error) {
	g.gotBuyer, g.gotCode = buyerRNC, securityCode
	return &entity.SummaryInquiryResult{SecurityCode: securityCode}, nil
}

func TestInquirySummary_CodigoDeSeguridadTalCual(t *testing.T) {
	gw := &inquiryGateway{}
	cred := testutil.NewCredential(t)
	svc := ecf.NewService(gw, signer.NewDigitalSignatureService(cred), cred, entity.EnvironmentDev).
		WithSession(&entity.Session{Token: "tok"})

	_, err := svc.InquirySummary(context.Background(), "131880681", "E320000000007", " 101010632 ", " Ab12Cd")
	require.NoError(t, err)
	assert.Equal(t, " Ab12Cd", gw.gotCode)
	assert.Equal(t, "101010632", gw.gotBuyer)
}
