package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-dgii/internal/application/dto"
	"github.com/jhoicas/ecf-dgii/internal/application/ecf"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/pdf"
	apphttp "github.com/jhoicas/ecf-dgii/internal/interfaces/http"
	"github.com/jhoicas/ecf-dgii/internal/testutil"
)

const (
	testAPIKey = "llave-de-prueba"

	invoiceXML = `<?xml version="1.0" encoding="utf-8"?>
<ECF><Encabezado><IdDoc><TipoeCF>31</TipoeCF><eNCF>E310000000001</eNCF><FechaEmision>01-04-2025</FechaEmision></IdDoc>
<Emisor><RNCEmisor>131880681</RNCEmisor><RazonSocialEmisor>DOCUMENTOS ELECTRONICOS DE 02</RazonSocialEmisor></Emisor>
<Totales><MontoTotal>1180.00</MontoTotal></Totales></Encabezado></ECF>`
)

type apiFixture struct {
	app *fiber.App
	gw  *testutil.FakeGateway
}

func newAPI(t *testing.T) *apiFixture {
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

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		ECF: svc,
		PDF: pdf.NewMarotoPDFGenerator(endpoints.ECF, endpoints.FC),
		Auth: apphttp.AuthConfig{
			APIKey:     testAPIKey,
			Secret:     testJWTSecret,
			Issuer:     testIssuer,
			ExpMinutes: testExpMin,
			IssuerRNC:  testRNC,
		},
		JWTSecret: testJWTSecret,
		Logger:    zerolog.Nop(),
	})
	return &apiFixture{app: app, gw: gw}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, bearer string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *apiFixture) token(t *testing.T, role string) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/auth/token", dto.TokenRequest{APIKey: testAPIKey, ClientID: testClientID, Role: role}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Bearer", out.TokenType)
	assert.Equal(t, testExpMin*60, out.ExpiresIn)
	return out.AccessToken
}

func decodeError(t *testing.T, resp *http.Response) dto.ErrorResponse {
	t.Helper()
	var out dto.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// ── Token ─────────────────────────────────────────────────────────────────────

func TestToken_Validaciones(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, http.MethodPost, "/api/auth/token", dto.TokenRequest{APIKey: "otra", ClientID: testClientID}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/auth/token", dto.TokenRequest{APIKey: testAPIKey}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/auth/token", dto.TokenRequest{APIKey: testAPIKey, ClientID: testClientID, Role: "admin"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.NotEmpty(t, f.token(t, ""))
}

// ── Flujo e-CF ────────────────────────────────────────────────────────────────

func TestECF_SinSesionDGII(t *testing.T) {
	f := newAPI(t)
	tok := f.token(t, apphttp.RoleIssuer)

	resp := f.do(t, http.MethodPost, "/api/ecf/documents", dto.SubmitRequest{ENCF: "E310000000001", XML: invoiceXML}, tok)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "DGII_AUTHENTICATION", decodeError(t, resp).Code)
	assert.Empty(t, f.gw.Uploads())

	resp = f.do(t, http.MethodGet, "/api/ecf/session", nil, tok)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestECF_SesionEnvioSeguimientoYPDF(t *testing.T) {
	f := newAPI(t)
	tok := f.token(t, apphttp.RoleIssuer)

	resp := f.do(t, http.MethodPost, "/api/ecf/session", nil, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess dto.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	assert.Equal(t, "DEV", sess.Environment)
	assert.NotEmpty(t, resp.Header.Get(apphttp.HeaderRequestID))

	// Sin rnc en el body se usa el del token.
	resp = f.do(t, http.MethodPost, "/api/ecf/documents", dto.SubmitRequest{ENCF: "e310000000001", XML: invoiceXML}, tok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sub dto.SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	assert.Equal(t, "E310000000001", sub.ENCF)
	assert.Equal(t, "131880681E310000000001.xml", sub.FileName)
	assert.Len(t, sub.SecurityCode, 6)
	assert.NotEmpty(t, sub.TrackID)
	assert.Nil(t, sub.Summary)
	require.Len(t, f.gw.Uploads(), 1)

	resp = f.do(t, http.MethodGet, "/api/ecf/tracking/"+sub.TrackID, nil, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec dto.TrackingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, sub.TrackID, rec.TrackID)
	assert.Equal(t, string(entity.StatusInProcess), rec.Status)
	assert.Equal(t, entity.LabelInProcess, rec.Label)
	assert.False(t, rec.Terminal)

	resp = f.do(t, http.MethodPost, "/api/ecf/representation", dto.RepresentationRequest{SignedXML: sub.SignedXML}, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get(fiber.HeaderContentType))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestECF_DocumentoEnJSON(t *testing.T) {
	f := newAPI(t)
	tok := f.token(t, apphttp.RoleIssuer)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/ecf/session", nil, tok).StatusCode)

	doc := json.RawMessage(`{"ECF": {"Encabezado": {"IdDoc": {"TipoeCF": 31, "eNCF": "E310000000002"},
		"Emisor": {"RNCEmisor": "131880681"}, "Totales": {"MontoTotal": 100.00}}}}`)
	resp := f.do(t, http.MethodPost, "/api/ecf/documents", dto.SubmitRequest{ENCF: "E310000000002", Document: doc}, tok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ups := f.gw.Uploads()
	require.Len(t, ups, 1)
	assert.Equal(t, "131880681E310000000002.xml", ups[0].FileName)
	assert.Contains(t, string(ups[0].Body), "<eNCF>E310000000002</eNCF>")

	resp = f.do(t, http.MethodPost, "/api/ecf/documents", dto.SubmitRequest{ENCF: "E310000000002", XML: invoiceXML, Document: doc}, tok)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestECF_ErroresDeDominio(t *testing.T) {
	f := newAPI(t)
	tok := f.token(t, apphttp.RoleIssuer)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/ecf/session", nil, tok).StatusCode)

	resp := f.do(t, http.MethodPost, "/api/ecf/documents", dto.SubmitRequest{ENCF: "E99", XML: invoiceXML}, tok)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", decodeError(t, resp).Code)

	resp = f.do(t, http.MethodGet, "/api/ecf/tracking?encf=E310000000099", nil, tok)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Code)

	resp = f.do(t, http.MethodPost, "/api/ecf/representation", dto.RepresentationRequest{SignedXML: invoiceXML}, tok)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "un XML sin firma no tiene representación")
}

func TestECF_RolConsultaSoloLee(t *testing.T) {
	f := newAPI(t)
	issuer := f.token(t, apphttp.RoleIssuer)
	viewer := f.token(t, apphttp.RoleViewer)

	resp := f.do(t, http.MethodPost, "/api/ecf/session", nil, viewer)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/ecf/documents", dto.SubmitRequest{ENCF: "E310000000001", XML: invoiceXML}, viewer)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/ecf/session", nil, issuer).StatusCode)
	resp = f.do(t, http.MethodGet, "/api/ecf/session", nil, viewer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/ecf/status", nil, viewer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/ecf/directory/131880681", nil, viewer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []entity.DirectoryEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.NotEmpty(t, entries)
	assert.Equal(t, "131880681", entries[0].RNC)
}

func TestECF_RNCAjenoAlToken(t *testing.T) {
	f := newAPI(t)
	tok := f.token(t, apphttp.RoleIssuer)

	resp := f.do(t, http.MethodPost, "/api/ecf/documents", dto.SubmitRequest{RNC: "101010632", ENCF: "E310000000001", XML: invoiceXML}, tok)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "RNC_MISMATCH", decodeError(t, resp).Code)

	resp = f.do(t, http.MethodGet, "/api/ecf/tracking?rnc=101-01063-2&encf=E310000000001", nil, tok)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// El mismo RNC con guiones se acepta.
	resp = f.do(t, http.MethodGet, "/api/ecf/tracking?rnc=131-88068-1&encf=E310000000001", nil, tok)
	assert.NotEqual(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, f.gw.Uploads())
}

func TestECF_SinTokenDeLaAPI(t *testing.T) {
	f := newAPI(t)
	resp := f.do(t, http.MethodGet, "/api/ecf/status", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
