package dgii_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/internal/testutil"
)

const invoiceXML = `<?xml version="1.0" encoding="utf-8"?>
<ECF><Encabezado><IdDoc><TipoeCF>31</TipoeCF><eNCF>E310000000001</eNCF></IdDoc>
<Emisor><RNCEmisor>131880681</RNCEmisor></Emisor><Totales><MontoTotal>1180.00</MontoTotal></Totales></Encabezado></ECF>`

const summaryXML = `<?xml version="1.0" encoding="utf-8"?>
<RFCE><Encabezado><IdDoc><TipoeCF>32</TipoeCF><eNCF>E320000000007</eNCF><TipoIngresos>01</TipoIngresos></IdDoc>
<Emisor><RNCEmisor>131880681</RNCEmisor></Emisor><Comprador><RNCComprador>101010632</RNCComprador></Comprador>
<Totales><MontoTotal>590.00</MontoTotal></Totales><CodigoSeguridadeCF>Ab12Cd</CodigoSeguridadeCF></Encabezado></RFCE>`

type fixture struct {
	gw     *testutil.FakeGateway
	client *dgii.Client
	signer *signer.DigitalSignatureService
	cred   *entity.Credential
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := testutil.NewFakeGateway(t)
	cred := testutil.NewCredential(t)
	endpoints := dgii.EndpointsFor(entity.EnvironmentDev).WithOverrides(gw.ECFBaseURL(), gw.FCBaseURL(), gw.StatusURL())
	client := dgii.NewClient(cred, entity.EnvironmentDev,
		dgii.WithEndpoints(endpoints),
		dgii.WithRootCAs(gw.RootCAs()),
		dgii.WithTimeout(5*time.Second),
	)
	gw.VerifySignature = testutil.XMLDSigVerifier(cred.Certificate)
	return &fixture{gw: gw, client: client, signer: signer.NewDigitalSignatureService(cred), cred: cred}
}

func (f *fixture) session(t *testing.T) *entity.Session {
	t.Helper()
	ctx := context.Background()
	seed, err := f.client.Seed(ctx, "")
	require.NoError(t, err)
	signed, err := f.signer.Sign(seed, entity.RootSemilla)
	require.NoError(t, err)
	sess, err := f.client.ValidateSeed(ctx, "", signed)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	assert.Equal(t, f.gw.ECFBaseURL()+"/autenticacion", sess.Endpoint)
	assert.True(t, sess.ExpiresAt.After(sess.IssuedAt))
	return sess
}

func (f *fixture) sign(t *testing.T, xml, root string) []byte {
	t.Helper()
	out, err := f.signer.Sign([]byte(xml), root)
	require.NoError(t, err)
	return out
}

func TestEndpointsFor(t *testing.T) {
	assert.Equal(t, "https://ecf.dgii.gov.do/testecf", dgii.EndpointsFor(entity.EnvironmentDev).ECF)
	assert.Equal(t, "https://fc.dgii.gov.do/certecf", dgii.EndpointsFor(entity.EnvironmentTest).FC)
	assert.Equal(t, "https://ecf.dgii.gov.do/ecf/autenticacion", dgii.EndpointsFor(entity.EnvironmentProd).AuthURL())

	e := dgii.EndpointsFor(entity.EnvironmentDev).WithOverrides("https://proxy.local/ecf/", "", "")
	assert.Equal(t, "https://proxy.local/ecf", e.ECF)
	assert.Equal(t, "https://fc.dgii.gov.do/testecf", e.FC)
}

func TestClient_AutenticacionConTLSMutuo(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)

	assert.True(t, strings.HasPrefix(sess.Token, "tok-"))
	assert.True(t, f.gw.ClientCertSeen(), "el cliente debe presentar el certificado en el handshake")
}

func TestClient_AutenticacionHostAlterno(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed, err := f.client.Seed(ctx, f.gw.BuyerAuthURL())
	require.NoError(t, err)
	signed, err := f.signer.Sign(seed, entity.RootSemilla)
	require.NoError(t, err)
	tok, err := f.client.ValidateSeed(ctx, f.gw.BuyerAuthURL()+"/", signed)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)
}

func TestClient_ValidateSeedSinFirma(t *testing.T) {
	f := newFixture(t)
	seed, err := f.client.Seed(context.Background(), "")
	require.NoError(t, err)

	_, err = f.client.ValidateSeed(context.Background(), "", seed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidationRejection))
}

func TestClient_SendDocumentAdjuntaBearerYMultipart(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)

	receipt, err := f.client.SendDocument(context.Background(), sess, f.sign(t, invoiceXML, entity.RootECF), "131880681E310000000001.xml")
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.TrackID)

	uploads := f.gw.Uploads()
	last := uploads[len(uploads)-1]
	assert.Equal(t, "Bearer "+sess.Token, last.Authorization)
	assert.Equal(t, "xml", last.Field)
	assert.Equal(t, "131880681E310000000001.xml", last.FileName)
}

func TestClient_TokenInvalidadoEsSessionExpired(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	f.gw.RevokeTokens()

	_, err := f.client.TrackResult(context.Background(), sess, "cualquiera")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSessionExpired))
	assert.Equal(t, http.StatusUnauthorized, domain.StatusOf(err))
}

func TestClient_TrackResultProgresa(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	ctx := context.Background()

	receipt, err := f.client.SendDocument(ctx, sess, f.sign(t, invoiceXML, entity.RootECF), "a.xml")
	require.NoError(t, err)

	first, err := f.client.TrackResult(ctx, sess, receipt.TrackID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusInProcess, first.Status)
	assert.Equal(t, "E310000000001", first.ENCF)
	assert.False(t, first.ReceivedAt.IsZero())

	second, err := f.client.TrackResult(ctx, sess, receipt.TrackID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, second.Status)
	assert.Equal(t, entity.CodeAccepted, second.Code)
}

func TestClient_TrackResultEstadoDesconocido(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	ctx := context.Background()
	receipt, err := f.client.SendDocument(ctx, sess, f.sign(t, invoiceXML, entity.RootECF), "a.xml")
	require.NoError(t, err)
	f.gw.SetStatusSequence(receipt.TrackID, "Pendiente de Revisión")

	_, err = f.client.TrackResult(ctx, sess, receipt.TrackID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProtocol))
}

func TestClient_TrackResultNoEncontrado(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)

	_, err := f.client.TrackResult(context.Background(), sess, "no-existe")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestClient_TrackIDs(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	ctx := context.Background()

	_, err := f.client.TrackIDs(ctx, sess, "131880681", "E310000000001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "sin envíos debe ser NotFound, nunca transporte")

	_, err = f.client.SendDocument(ctx, sess, f.sign(t, invoiceXML, entity.RootECF), "a.xml")
	require.NoError(t, err)
	records, err := f.client.TrackIDs(ctx, sess, "131880681", "E310000000001")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Status.Valid())
	assert.Equal(t, "131880681", records[0].IssuerRNC)
}

func TestClient_SendSummaryEInquiry(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	ctx := context.Background()

	receipt, err := f.client.SendSummary(ctx, sess, f.sign(t, summaryXML, entity.RootRFCE), "131880681E320000000007.xml")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, receipt.Status)
	assert.Equal(t, "E320000000007", receipt.ENCF)
	assert.True(t, receipt.SequenceUsed)
	assert.Contains(t, f.gw.Uploads()[len(f.gw.Uploads())-1].Path, "/recepcionfc/")

	res, err := f.client.Inquiry(ctx, sess, "131880681", "E320000000007", "101010632", "Ab12Cd")
	require.NoError(t, err)
	assert.Equal(t, "Ab12Cd", res.SecurityCode)
	assert.Equal(t, "590", res.TotalAmount.String())
	assert.Equal(t, entity.StatusAccepted, res.Status)
	assert.Equal(t, "101010632", res.BuyerRNC)
}

func TestClient_SendSummaryRechazado(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	invalid := strings.Replace(summaryXML, "<TipoIngresos>01</TipoIngresos>", "<TipoIngresos>1</TipoIngresos>", 1)

	_, err := f.client.SendSummary(context.Background(), sess, f.sign(t, invalid, entity.RootRFCE), "x.xml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidationRejection))
	assert.Equal(t, entity.CodeRejected, domain.AuthorityCode(err))

	var de *domain.Error
	require.True(t, errors.As(err, &de))
	require.NotEmpty(t, de.Messages)
	assert.Contains(t, de.Messages[0].Value, "TipoIngresos")
}

func TestClient_InquiryNoEncontrado(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)

	_, err := f.client.Inquiry(context.Background(), sess, "131880681", "E320000000099", "", "zzzzzz")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestClient_Directory(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	ctx := context.Background()

	entries, err := f.client.Directory(ctx, sess, "131880681")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entity.DirectoryEntry{
		Name:          "DGII",
		RNC:           "131880681",
		AcceptanceURL: "https://ecf.dgii.gov.do/testecf/emisorreceptor",
		ReceptionURL:  "https://ecf.dgii.gov.do/testecf/emisorreceptor",
		AuthURL:       "https://ecf.dgii.gov.do/Testecf/autenticacion",
	}, entries[0])

	empty, err := f.client.Directory(ctx, sess, "101010632")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	all, err := f.client.DirectoryList(ctx, sess)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestClient_ApprovalYAnulacion(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	ctx := context.Background()

	approval := `<ARECF><DetalleAprobacionComercial><RNCEmisor>101010632</RNCEmisor><eNCF>E310000000001</eNCF><Estado>1</Estado></DetalleAprobacionComercial></ARECF>`
	ar, err := f.client.SendCommercialApproval(ctx, sess, f.sign(t, approval, entity.RootARECF), "ar.xml")
	require.NoError(t, err)
	assert.NotEmpty(t, ar.Status)

	void := `<ANECF><Encabezado><RncEmisor>131880681</RncEmisor><CantidadeNCFAnulados>1</CantidadeNCFAnulados></Encabezado></ANECF>`
	vr, err := f.client.VoidSequences(ctx, sess, f.sign(t, void, entity.RootANECF), "an.xml")
	require.NoError(t, err)
	assert.Equal(t, "131880681", vr.RNC)
	assert.Equal(t, "0", vr.Code)
	assert.Equal(t, []string{"Rangos anulados correctamente."}, vr.Messages)
}

func TestClient_ServiceStatusSinSesion(t *testing.T) {
	f := newFixture(t)

	statuses, err := f.client.ServiceStatus(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	assert.Equal(t, "Disponible", statuses[0].Status)
}

func TestClient_ErrorDeRedEsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := dgii.NewClient(&entity.Credential{}, entity.EnvironmentDev,
		dgii.WithEndpoints(dgii.Endpoints{ECF: url, FC: url, Status: url}))
	_, err := client.ServiceStatus(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
}

func TestClient_5xxEsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := dgii.NewClient(&entity.Credential{}, entity.EnvironmentDev,
		dgii.WithHTTPClient(srv.Client()),
		dgii.WithEndpoints(dgii.Endpoints{ECF: srv.URL, FC: srv.URL, Status: srv.URL}))
	_, err := client.TrackResult(context.Background(), &entity.Session{Token: "t"}, "abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.Equal(t, http.StatusBadGateway, domain.StatusOf(err))
}

func TestClient_TrackIDsTextoPlanoNoEncontrado(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`"TrackId no encontrado."`))
	}))
	defer srv.Close()

	client := dgii.NewClient(&entity.Credential{}, entity.EnvironmentDev,
		dgii.WithHTTPClient(srv.Client()),
		dgii.WithEndpoints(dgii.Endpoints{ECF: srv.URL, FC: srv.URL, Status: srv.URL}))
	_, err := client.TrackIDs(context.Background(), &entity.Session{Token: "t"}, "131880681", "E310000000001")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
