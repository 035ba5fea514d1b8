package testutil

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

// Prefijos de las URLs base del stub.
const (
	ECFPrefix    = "/testecf"
	FCPrefix     = "/fc/testecf"
	StatusPath   = "/status/api/estatusservicios/obtenerestatus"
	BuyerPrefix  = "/comprador"
	DGIIRNC      = "131880681"
	dgiiEndpoint = "https://ecf.dgii.gov.do/testecf/emisorreceptor"
)

// DirectoryRecord entrada del directorio del stub.
type DirectoryRecord struct {
	Name          string `json:"nombre"`
	RNC           string `json:"rnc"`
	AcceptanceURL string `json:"urlAceptacion"`
	ReceptionURL  string `json:"urlRecepcion"`
	AuthURL       string `json:"urlOpcional"`
}

// DGIIDirectoryEntry entrada que publica la DGII en TesteCF.
var DGIIDirectoryEntry = DirectoryRecord{
	Name:          "DGII",
	RNC:           DGIIRNC,
	AcceptanceURL: dgiiEndpoint,
	ReceptionURL:  dgiiEndpoint,
	AuthURL:       "https://ecf.dgii.gov.do/Testecf/autenticacion",
}

// Upload petición multipart recibida por el stub.
type Upload struct {
	Path          string
	Field         string
	FileName      string
	Authorization string
	Body          []byte
}

type fakeTrack struct {
	id       string
	rnc      string
	encf     string
	received time.Time
	// etiquetas que devuelve cada consulta sucesiva; la última se repite.
	statuses []string
	polls    int
}

type fakeSummary struct {
	securityCode string
	total        string
	buyer        string
}

// FakeGateway stub HTTPS del gateway e-CF: autenticación por semilla, recepción, resúmenes,
// consultas, directorio y estatus. Guarda el estado en memoria.
type FakeGateway struct {
	Server *httptest.Server

	// VerifySignature valida la firma de cada XML recibido. Por defecto solo exige <Signature>.
	VerifySignature func(signedXML []byte) error

	mu             sync.Mutex
	tokens         map[string]bool
	tracks         map[string]*fakeTrack
	summaries      map[string]fakeSummary
	directory      []DirectoryRecord
	uploads        []Upload
	clientCertSeen bool
	initialStatus  []string
}

// NewFakeGateway arranca el stub con TLS y solicitud (opcional) de certificado de cliente.
func NewFakeGateway(t testing.TB) *FakeGateway {
	t.Helper()
	g := &FakeGateway{
		tokens:        map[string]bool{},
		tracks:        map[string]*fakeTrack{},
		summaries:     map[string]fakeSummary{},
		directory:     []DirectoryRecord{DGIIDirectoryEntry},
		initialStatus: []string{"En Proceso", "Aceptado"},
	}
	g.VerifySignature = func(b []byte) error {
		if !bytes.Contains(b, []byte("<Signature")) {
			return fmt.Errorf("documento sin firma")
		}
		return nil
	}
	srv := httptest.NewUnstartedServer(g.routes())
	srv.TLS = &tls.Config{ClientAuth: tls.RequestClientCert}
	srv.StartTLS()
	g.Server = srv
	t.Cleanup(srv.Close)
	return g
}

// ECFBaseURL URL base equivalente a https://ecf.dgii.gov.do/testecf.
func (g *FakeGateway) ECFBaseURL() string { return g.Server.URL + ECFPrefix }

// FCBaseURL URL base equivalente a https://fc.dgii.gov.do/testecf.
func (g *FakeGateway) FCBaseURL() string { return g.Server.URL + FCPrefix }

// StatusURL URL del estatus de servicios.
func (g *FakeGateway) StatusURL() string { return g.Server.URL + StatusPath }

// BuyerAuthURL URL de autenticación alterna (host de un comprador).
func (g *FakeGateway) BuyerAuthURL() string { return g.Server.URL + BuyerPrefix + "/autenticacion" }

// RootCAs pool con el certificado del stub.
func (g *FakeGateway) RootCAs() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(g.Server.Certificate())
	return pool
}

// ClientCertSeen indica si algún handshake presentó certificado de cliente.
func (g *FakeGateway) ClientCertSeen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clientCertSeen
}

// Uploads peticiones multipart recibidas.
func (g *FakeGateway) Uploads() []Upload {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Upload(nil), g.uploads...)
}

// RevokeTokens invalida todos los tokens emitidos (siguiente llamada responde 401).
func (g *FakeGateway) RevokeTokens() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = map[string]bool{}
}

// SetStatusSequence fija las etiquetas que devolverá un trackId en consultas sucesivas.
func (g *FakeGateway) SetStatusSequence(trackID string, labels ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tr, ok := g.tracks[trackID]; ok {
		tr.statuses = labels
		tr.polls = 0
	}
}

// SetInitialStatus etiquetas para los envíos siguientes.
func (g *FakeGateway) SetInitialStatus(labels ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialStatus = labels
}

// AddDirectoryEntry publica otra entrada en el directorio.
func (g *FakeGateway) AddDirectoryEntry(e DirectoryRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.directory = append(g.directory, e)
}

// ── rutas ─────────────────────────────────────────────────────────────────────

func (g *FakeGateway) routes() http.Handler {
	mux := http.NewServeMux()
	for _, prefix := range []string{ECFPrefix, BuyerPrefix} {
		mux.HandleFunc("GET "+prefix+"/autenticacion/api/autenticacion/semilla", g.handleSeed)
		mux.HandleFunc("POST "+prefix+"/autenticacion/api/autenticacion/validarsemilla", g.handleValidateSeed)
	}
	mux.HandleFunc("POST "+ECFPrefix+"/recepcion/api/facturaselectronicas", g.authorized(g.handleReception))
	mux.HandleFunc("POST "+FCPrefix+"/recepcionfc/api/recepcion/ecf", g.authorized(g.handleSummary))
	mux.HandleFunc("POST "+ECFPrefix+"/aprobacioncomercial/api/aprobacioncomercial", g.authorized(g.handleApproval))
	mux.HandleFunc("POST "+ECFPrefix+"/anulacionrangos/api/operaciones/anularrango", g.authorized(g.handleVoid))
	mux.HandleFunc("GET "+ECFPrefix+"/consultaresultado/api/consultas/estado", g.authorized(g.handleTrackResult))
	mux.HandleFunc("GET "+ECFPrefix+"/consultatrackids/api/trackids/consulta", g.authorized(g.handleTrackIDs))
	mux.HandleFunc("GET "+ECFPrefix+"/consultaestado/api/consultas/estado", g.authorized(g.handleInquiry))
	mux.HandleFunc("GET "+ECFPrefix+"/consultadirectorio/api/consultas/obtenerdirectorioporrnc", g.authorized(g.handleDirectory))
	mux.HandleFunc("GET "+ECFPrefix+"/consultadirectorio/api/consultas/listado", g.authorized(g.handleDirectoryList))
	mux.HandleFunc("GET "+StatusPath, g.handleServiceStatus)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			g.mu.Lock()
			g.clientCertSeen = true
			g.mu.Unlock()
		}
		mux.ServeHTTP(w, r)
	})
}

func (g *FakeGateway) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		g.mu.Lock()
		ok := g.tokens[token]
		g.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (g *FakeGateway) handleSeed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><SemillaModel xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema"><valor>%s</valor><fecha>%s</fecha></SemillaModel>`,
		uuid.NewString(), time.Now().Format(time.RFC3339Nano))
}

func (g *FakeGateway) handleValidateSeed(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := g.readUpload(w, r)
	if !ok {
		return
	}
	if doc.Root().Tag != "SemillaModel" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"mensaje": "semilla inválida"})
		return
	}
	token := "tok-" + uuid.NewString()
	g.mu.Lock()
	g.tokens[token] = true
	g.mu.Unlock()
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"expira":   now.Add(time.Hour).Format(time.RFC3339),
		"expedido": now.Format(time.RFC3339),
	})
}

func (g *FakeGateway) handleReception(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := g.readUpload(w, r)
	if !ok {
		return
	}
	if doc.Root().Tag != "ECF" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"mensaje": "raíz inválida"})
		return
	}
	tr := &fakeTrack{
		id:       uuid.NewString(),
		rnc:      text(doc, "//RNCEmisor"),
		encf:     text(doc, "//eNCF"),
		received: time.Now(),
	}
	g.mu.Lock()
	tr.statuses = append([]string(nil), g.initialStatus...)
	g.tracks[tr.id] = tr
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"trackId": tr.id, "error": "", "mensaje": ""})
}

func (g *FakeGateway) handleSummary(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := g.readUpload(w, r)
	if !ok {
		return
	}
	encf := text(doc, "//eNCF")
	rejected := func(msg string) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"codigo":             2,
			"estado":             "Rechazado",
			"mensajes":           []map[string]any{{"codigo": 1, "valor": msg}},
			"encf":               encf,
			"secuenciaUtilizada": false,
		})
	}
	if doc.Root().Tag != "RFCE" {
		rejected("El documento no es un RFCE.")
		return
	}
	if ti := text(doc, "//TipoIngresos"); len(ti) != 2 {
		rejected("El valor del campo TipoIngresos no es válido.")
		return
	}
	code := text(doc, "//CodigoSeguridadeCF")
	if len(code) != 6 {
		rejected("El campo CodigoSeguridadeCF no es válido.")
		return
	}
	g.mu.Lock()
	g.summaries[text(doc, "//RNCEmisor")+"|"+encf] = fakeSummary{
		securityCode: code,
		total:        text(doc, "//MontoTotal"),
		buyer:        text(doc, "//RNCComprador"),
	}
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"codigo":             1,
		"estado":             "Aceptado",
		"mensajes":           []map[string]any{},
		"encf":               encf,
		"secuenciaUtilizada": true,
	})
}

func (g *FakeGateway) handleApproval(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := g.readUpload(w, r)
	if !ok {
		return
	}
	if doc.Root().Tag != "ARECF" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"mensaje": []string{"raíz inválida"}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"estado": "Aprobación comercial recibida", "mensaje": []string{}})
}

func (g *FakeGateway) handleVoid(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := g.readUpload(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rnc":      text(doc, "//RncEmisor"),
		"codigo":   "0",
		"nombre":   "Aceptado",
		"mensajes": []string{"Rangos anulados correctamente."},
	})
}

func (g *FakeGateway) handleTrackResult(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("trackid")
	g.mu.Lock()
	tr, ok := g.tracks[id]
	var label string
	if ok {
		label = tr.next()
	}
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"mensaje": "TrackId no encontrado."})
		return
	}
	msgs := []map[string]any{}
	if label == "Rechazado" {
		msgs = append(msgs, map[string]any{"codigo": 145, "valor": "El monto total no coincide."})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trackId":            tr.id,
		"codigo":             codeFor(label),
		"estado":             label,
		"rnc":                tr.rnc,
		"encf":               tr.encf,
		"secuenciaUtilizada": true,
		"fechaRecepcion":     tr.received.Format("2006-01-02T15:04:05"),
		"mensajes":           msgs,
	})
}

func (g *FakeGateway) handleTrackIDs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rnc, encf := q.Get("rncemisor"), q.Get("encf")
	g.mu.Lock()
	var out []map[string]any
	for _, tr := range g.tracks {
		if tr.rnc == rnc && tr.encf == encf {
			out = append(out, map[string]any{
				"trackId":        tr.id,
				"estado":         tr.current(),
				"fechaRecepcion": tr.received.Format("2006-01-02T15:04:05"),
			})
		}
	}
	g.mu.Unlock()
	if len(out) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"estado": "TrackId no encontrado."})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *FakeGateway) handleInquiry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rnc, encf := q.Get("rncemisor"), q.Get("ncfelectronico")
	g.mu.Lock()
	s, ok := g.summaries[rnc+"|"+encf]
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"codigo": 0, "estado": "No encontrado"})
		return
	}
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"codigo":          1,
		"estado":          "Aceptado",
		"rncEmisor":       rnc,
		"ncfElectronico":  encf,
		"montoTotal":      json.Number(s.total),
		"totalITBIS":      json.Number("0"),
		"fechaEmision":    now.Format("02-01-2006"),
		"fechaFirma":      now.Format("02-01-2006 15:04:05"),
		"rncComprador":    s.buyer,
		"codigoSeguridad": s.securityCode,
	})
}

func (g *FakeGateway) handleDirectory(w http.ResponseWriter, r *http.Request) {
	rnc := r.URL.Query().Get("RNC")
	g.mu.Lock()
	out := []DirectoryRecord{}
	for _, e := range g.directory {
		if e.RNC == rnc {
			out = append(out, e)
		}
	}
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (g *FakeGateway) handleDirectoryList(w http.ResponseWriter, _ *http.Request) {
	g.mu.Lock()
	out := append([]DirectoryRecord(nil), g.directory...)
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (g *FakeGateway) handleServiceStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]any{
		{"servicio": "Autenticación", "estatus": "Disponible", "ambiente": "TesteCF"},
		{"servicio": "Recepción", "estatus": "Disponible", "ambiente": "TesteCF"},
	})
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (g *FakeGateway) readUpload(w http.ResponseWriter, r *http.Request) (Upload, *etree.Document, bool) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"mensaje": "multipart inválido"})
		return Upload{}, nil, false
	}
	file, header, err := r.FormFile("xml")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"mensaje": "falta el campo xml"})
		return Upload{}, nil, false
	}
	defer file.Close()
	body, _ := io.ReadAll(file)
	up := Upload{
		Path:          r.URL.Path,
		Field:         "xml",
		FileName:      header.Filename,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	}
	g.mu.Lock()
	g.uploads = append(g.uploads, up)
	verify := g.VerifySignature
	g.mu.Unlock()

	if err := verify(body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"codigo": 2, "mensaje": "firma inválida: " + err.Error()})
		return up, nil, false
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil || doc.Root() == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"mensaje": "XML inválido"})
		return up, nil, false
	}
	return up, doc, true
}

func (t *fakeTrack) next() string {
	label := t.current()
	if t.polls < len(t.statuses)-1 {
		t.polls++
	}
	return label
}

func (t *fakeTrack) current() string {
	if len(t.statuses) == 0 {
		return "En Proceso"
	}
	return t.statuses[t.polls]
}

func codeFor(label string) int {
	switch label {
	case "Aceptado":
		return 1
	case "Rechazado":
		return 2
	case "En Proceso":
		return 3
	case "Aceptado Condicional":
		return 4
	}
	return 99
}

func text(doc *etree.Document, path string) string {
	if el := doc.FindElement(path); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
