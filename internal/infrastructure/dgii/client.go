// Package dgii implementa el acceso al gateway e-CF de la DGII (República Dominicana):
// carga de credenciales, cliente HTTP con TLS mutuo y traducción de las respuestas al dominio.
package dgii

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

const (
	defaultTimeout   = 60 * time.Second
	maxResponseBytes = 1 << 20
	uploadField      = "xml"
)

// Client cliente del gateway e-CF. No guarda estado de sesión: cada llamada recibe la
// sesión explícitamente, por lo que un mismo Client sirve a varias sesiones en paralelo.
type Client struct {
	httpClient *http.Client
	tlsConfig  *tls.Config
	endpoints  Endpoints
	logger     zerolog.Logger
}

// Option configura el Client.
type Option func(*Client)

// WithHTTPClient reemplaza el http.Client (tests con httptest, proxies corporativos).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithEndpoints reemplaza las URLs base.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e.normalized() }
}

// WithTimeout fija el timeout total de cada petición.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRootCAs confía en las CA indicadas además de las del sistema (proxies TLS, stubs de prueba).
// No tiene efecto si se reemplazó el http.Client con WithHTTPClient.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(c *Client) { c.tlsConfig.RootCAs = pool }
}

// WithLogger inyecta el logger del componente.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient construye el cliente para el ambiente dado. Si la credencial es utilizable el
// transporte presenta su certificado en el handshake TLS.
func NewClient(cred *entity.Credential, env entity.Environment, opts ...Option) *Client {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cred.Usable() {
		tlsCfg.Certificates = []tls.Certificate{cred.TLSCertificate()}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg

	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout, Transport: transport},
		tlsConfig:  tlsCfg,
		endpoints:  EndpointsFor(env),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoints URLs base en uso.
func (c *Client) Endpoints() Endpoints { return c.endpoints }

// ── Autenticación ─────────────────────────────────────────────────────────────

// Seed obtiene la semilla XML (SemillaModel) a firmar. authURL vacío usa {ecf}/autenticacion.
func (c *Client) Seed(ctx context.Context, authURL string) ([]byte, error) {
	const op = "dgii.Seed"
	req, err := c.newRequest(ctx, http.MethodGet, c.authBase(authURL)+pathSeed, nil, nil)
	if err != nil {
		return nil, err
	}
	var seed []byte
	if err := c.do(req, op, &seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// ValidateSeed envía la semilla firmada y retorna la sesión emitida. Un token vacío es
// ErrAuthentication: nunca se retorna una sesión parcial.
func (c *Client) ValidateSeed(ctx context.Context, authURL string, signedSeed []byte) (*entity.Session, error) {
	const op = "dgii.ValidateSeed"
	base := c.authBase(authURL)
	req, err := c.newUpload(ctx, base+pathValidateSeed, nil, "semilla.xml", signedSeed)
	if err != nil {
		return nil, err
	}
	var out tokenResponse
	if err := c.do(req, op, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Token) == "" {
		return nil, domain.Errorf(domain.KindAuthentication, op, "la DGII no emitió token")
	}
	return &entity.Session{
		Token:     out.Token,
		Endpoint:  base,
		IssuedAt:  parseTime(out.IssuedAt),
		ExpiresAt: parseTime(out.Expires),
	}, nil
}

// ── Recepción ─────────────────────────────────────────────────────────────────

// SendDocument envía un e-CF firmado a recepción.
func (c *Client) SendDocument(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (*entity.SubmissionReceipt, error) {
	const op = "dgii.SendDocument"
	req, err := c.newUpload(ctx, c.endpoints.ECF+pathReception, sess, fileName, signedXML)
	if err != nil {
		return nil, err
	}
	var out receptionResponse
	if err := c.do(req, op, &out); err != nil {
		return nil, err
	}
	if out.TrackID == "" {
		return nil, domain.Errorf(domain.KindProtocol, op, "respuesta sin trackId: %s", out.Message)
	}
	return &entity.SubmissionReceipt{TrackID: out.TrackID, Error: string(out.Error), Message: string(out.Message)}, nil
}

// SendSummary envía un resumen RFCE firmado. El resumen se resuelve en línea: codigo 2 es un rechazo.
func (c *Client) SendSummary(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (*entity.SummaryReceipt, error) {
	const op = "dgii.SendSummary"
	req, err := c.newUpload(ctx, c.endpoints.FC+pathSummaryReception, sess, fileName, signedXML)
	if err != nil {
		return nil, err
	}
	var out summaryResponse
	if err := c.do(req, op, &out); err != nil {
		return nil, err
	}
	code := int(out.Code)
	status, ok := entity.TrackStatusFromCode(code)
	if !ok && out.Status != "" {
		parsed, err := entity.ParseTrackStatus(out.Status)
		if err != nil {
			return nil, domain.E(domain.KindProtocol, op, err)
		}
		status = parsed
	}
	if status == entity.StatusRejected {
		return nil, &domain.Error{
			Kind:     domain.KindValidationRejection,
			Op:       op,
			Status:   http.StatusOK,
			Code:     entity.CodeRejected,
			Message:  out.Status,
			Messages: []entity.Message(out.Messages),
		}
	}
	if !status.Valid() {
		return nil, domain.Errorf(domain.KindProtocol, op, "codigo %d sin estado", code)
	}
	return &entity.SummaryReceipt{
		TrackID:      out.TrackID,
		Code:         code,
		Status:       status,
		ENCF:         out.ENCF,
		SequenceUsed: out.SequenceUsed,
		Messages:     []entity.Message(out.Messages),
	}, nil
}

// SendCommercialApproval envía una aprobación comercial (ARECF) firmada.
func (c *Client) SendCommercialApproval(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (*entity.ApprovalReceipt, error) {
	const op = "dgii.SendCommercialApproval"
	req, err := c.newUpload(ctx, c.endpoints.ECF+pathApproval, sess, fileName, signedXML)
	if err != nil {
		return nil, err
	}
	var out approvalResponse
	if err := c.do(req, op, &out); err != nil {
		return nil, err
	}
	return &entity.ApprovalReceipt{Status: out.Status, Messages: out.Messages.values()}, nil
}

// VoidSequences envía una anulación de rangos de secuencia (ANECF) firmada.
func (c *Client) VoidSequences(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (*entity.VoidReceipt, error) {
	const op = "dgii.VoidSequences"
	req, err := c.newUpload(ctx, c.endpoints.ECF+pathVoid, sess, fileName, signedXML)
	if err != nil {
		return nil, err
	}
	var out voidResponse
	if err := c.do(req, op, &out); err != nil {
		return nil, err
	}
	return &entity.VoidReceipt{RNC: out.RNC, Code: string(out.Code), Name: out.Name, Messages: out.Messages.values()}, nil
}

// ── Consultas ─────────────────────────────────────────────────────────────────

// TrackResult consulta el resultado de un envío por trackId.
func (c *Client) TrackResult(ctx context.Context, sess *entity.Session, trackID string) (*entity.TrackingRecord, error) {
	const op = "dgii.TrackResult"
	q := url.Values{"trackid": {trackID}}
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoints.ECF+pathTrackResult, q, sess)
	if err != nil {
		return nil, err
	}
	var out trackResultResponse
	if err := c.do(req, op, &out); err != nil {
		return nil, err
	}
	status, err := resolveStatus(op, out.Status, int(out.Code))
	if err != nil {
		return nil, err
	}
	trackID = firstNonEmpty(out.TrackID, trackID)
	return &entity.TrackingRecord{
		TrackID:      trackID,
		Status:       status,
		Code:         int(out.Code),
		IssuerRNC:    out.RNC,
		ENCF:         out.ENCF,
		SequenceUsed: out.SequenceUsed,
		ReceivedAt:   parseTime(out.ReceivedAt),
		Messages:     []entity.Message(out.Messages),
	}, nil
}

// TrackIDs lista los envíos (trackIds) de un e-NCF. "TrackId no encontrado." se traduce a ErrNotFound.
func (c *Client) TrackIDs(ctx context.Context, sess *entity.Session, rnc, encf string) ([]entity.TrackingRecord, error) {
	const op = "dgii.TrackIDs"
	q := url.Values{"rncemisor": {rnc}, "encf": {encf}}
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoints.ECF+pathTrackIDs, q, sess)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := c.do(req, op, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		// La DGII responde un objeto o texto plano cuando no hay envíos.
		var single trackIDResponse
		label := plainText(raw)
		if json.Unmarshal(raw, &single) == nil && single.Status != "" {
			label = single.Status
		}
		if entity.IsNotFoundLabel(label) {
			return nil, &domain.Error{Kind: domain.KindNotFound, Op: op, Status: http.StatusOK, Message: label}
		}
		return nil, domain.Errorf(domain.KindProtocol, op, "respuesta inesperada: %s", label)
	}
	var list []trackIDResponse
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, domain.E(domain.KindProtocol, op, fmt.Errorf("decodificar respuesta: %w", err))
	}
	out := make([]entity.TrackingRecord, 0, len(list))
	for _, item := range list {
		status, err := resolveStatus(op, item.Status, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, entity.TrackingRecord{
			TrackID:    item.TrackID,
			Status:     status,
			IssuerRNC:  rnc,
			ENCF:       encf,
			ReceivedAt: parseTime(item.ReceivedAt),
		})
	}
	return out, nil
}

// Inquiry consulta el estado de un comprobante (usado para resúmenes tipo 32).
func (c *Client) Inquiry(ctx context.Context, sess *entity.Session, rnc, encf, buyerRNC, securityCode string) (*entity.SummaryInquiryResult, error) {
	const op = "dgii.Inquiry"
	q := url.Values{
		"rncemisor":       {rnc},
		"ncfelectronico":  {encf},
		"rnccomprador":    {buyerRNC},
		"codigoseguridad": {securityCode},
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoints.ECF+pathInquiry, q, sess)
	if err != nil {
		return nil, err
	}
	var out inquiryResponse
	if err := c.do(req, op, &out); err != nil {
		return nil, err
	}
	status, err := resolveStatus(op, out.Status, int(out.Code))
	if err != nil {
		return nil, err
	}
	return &entity.SummaryInquiryResult{
		Status:       status,
		Code:         int(out.Code),
		IssuerRNC:    firstNonEmpty(out.IssuerRNC, rnc),
		ENCF:         firstNonEmpty(out.ENCF, encf),
		BuyerRNC:     out.BuyerRNC,
		SecurityCode: out.SecurityCode,
		TotalAmount:  out.TotalAmount,
		TotalITBIS:   out.TotalITBIS,
		IssueDate:    out.IssueDate,
		SignedAt:     out.SignedAt,
	}, nil
}

// Directory consulta las URLs de recepción/aprobación publicadas por un contribuyente.
func (c *Client) Directory(ctx context.Context, sess *entity.Session, rnc string) ([]entity.DirectoryEntry, error) {
	const op = "dgii.Directory"
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoints.ECF+pathDirectoryByRNC, url.Values{"RNC": {rnc}}, sess)
	if err != nil {
		return nil, err
	}
	return c.directory(req, op)
}

// DirectoryList lista completa del directorio de receptores electrónicos.
func (c *Client) DirectoryList(ctx context.Context, sess *entity.Session) ([]entity.DirectoryEntry, error) {
	const op = "dgii.DirectoryList"
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoints.ECF+pathDirectoryList, nil, sess)
	if err != nil {
		return nil, err
	}
	return c.directory(req, op)
}

func (c *Client) directory(req *http.Request, op string) ([]entity.DirectoryEntry, error) {
	var out []entity.DirectoryEntry
	if err := c.do(req, op, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []entity.DirectoryEntry{}
	}
	return out, nil
}

// ServiceStatus estatus público de los servicios e-CF. No requiere sesión.
func (c *Client) ServiceStatus(ctx context.Context) ([]entity.ServiceStatus, error) {
	const op = "dgii.ServiceStatus"
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoints.Status, nil, nil)
	if err != nil {
		return nil, err
	}
	var out []entity.ServiceStatus
	if err := c.do(req, op, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── HTTP ──────────────────────────────────────────────────────────────────────

func (c *Client) authBase(authURL string) string {
	if authURL == "" {
		return c.endpoints.AuthURL()
	}
	return strings.TrimRight(authURL, "/")
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, q url.Values, sess *entity.Session) (*http.Request, error) {
	if len(q) > 0 {
		rawURL += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, domain.E(domain.KindInvalidInput, "dgii.newRequest", err)
	}
	req.Header.Set("Accept", "application/json")
	if sess.Valid() {
		req.Header.Set("Authorization", sess.AuthorizationHeader())
	}
	return req, nil
}

// newUpload arma el multipart/form-data con el XML en el campo "xml".
func (c *Client) newUpload(ctx context.Context, rawURL string, sess *entity.Session, fileName string, content []byte) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, uploadField, escapeQuotes(fileName)))
	h.Set("Content-Type", "text/xml")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, domain.E(domain.KindInvalidInput, "dgii.newUpload", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, domain.E(domain.KindInvalidInput, "dgii.newUpload", err)
	}
	if err := w.Close(); err != nil {
		return nil, domain.E(domain.KindInvalidInput, "dgii.newUpload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, &buf)
	if err != nil {
		return nil, domain.E(domain.KindInvalidInput, "dgii.newUpload", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if sess.Valid() {
		req.Header.Set("Authorization", sess.AuthorizationHeader())
	}
	return req, nil
}

// do ejecuta la petición, aplica el interceptor y decodifica el JSON en out.
// Si out es *[]byte recibe el cuerpo crudo.
func (c *Client) do(req *http.Request, op string, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Str("url", req.URL.Redacted()).Msg("dgii: fallo de transporte")
		return transportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(op, fmt.Errorf("leer respuesta: %w", err))
	}
	c.logger.Debug().
		Str("op", op).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("dgii: respuesta")

	if err := classify(op, resp.StatusCode, body); err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			c.logger.Info().Str("op", op).Str("kind", de.Kind.String()).Int("status", de.Status).Int("codigo", de.Code).Msg("dgii: respuesta de error")
		}
		return err
	}
	switch v := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*v = body
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.E(domain.KindProtocol, op, fmt.Errorf("decodificar respuesta: %w", err))
	}
	return nil
}

// resolveStatus traduce "estado" (o "codigo" si no hay etiqueta). Un estado desconocido es
// una violación de protocolo; "no encontrado" es ErrNotFound.
func resolveStatus(op, label string, code int) (entity.TrackStatus, error) {
	if entity.IsNotFoundLabel(label) {
		return "", &domain.Error{Kind: domain.KindNotFound, Op: op, Status: http.StatusOK, Code: code, Message: label}
	}
	if strings.TrimSpace(label) == "" {
		if s, ok := entity.TrackStatusFromCode(code); ok {
			return s, nil
		}
		if code == entity.CodeNotFound {
			return "", &domain.Error{Kind: domain.KindNotFound, Op: op, Status: http.StatusOK, Message: entity.LabelNotFound}
		}
		return "", domain.Errorf(domain.KindProtocol, op, "codigo %d desconocido", code)
	}
	s, err := entity.ParseTrackStatus(label)
	if err != nil {
		return "", domain.E(domain.KindProtocol, op, err)
	}
	return s, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
