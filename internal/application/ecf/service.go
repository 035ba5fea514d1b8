// Package ecf orquesta el ciclo de vida de un comprobante fiscal electrónico ante la DGII:
//
//	Autenticación (semilla) → Firma XMLDSig → Envío (e-CF o resumen RFCE) → Consulta de estado
//
// Todas las operaciones son síncronas y dirigidas por el llamador: no hay reintentos
// automáticos ni sondeo en segundo plano.
package ecf

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	pkgecf "github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// Service fachada del orquestador. La sesión vive en la instancia (puntero atómico); dos
// Service distintos nunca comparten token. Es seguro para uso concurrente.
type Service struct {
	gateway Gateway
	signer  pkgecf.Signer
	cred    *entity.Credential
	env     entity.Environment
	logger  zerolog.Logger
	now     func() time.Time
	session *atomic.Pointer[entity.Session]
}

// Option configura el Service.
type Option func(*Service)

// WithLogger inyecta el logger del componente.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService construye el orquestador. cred puede no ser utilizable: en ese caso las
// operaciones que firman fallan con ErrCredential antes de tocar la red.
func NewService(gateway Gateway, signer pkgecf.Signer, cred *entity.Credential, env entity.Environment, opts ...Option) *Service {
	s := &Service{
		gateway: gateway,
		signer:  signer,
		cred:    cred,
		env:     env,
		logger:  zerolog.Nop(),
		now:     time.Now,
		session: new(atomic.Pointer[entity.Session]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Environment ambiente configurado.
func (s *Service) Environment() entity.Environment { return s.env }

// Session sesión activa (nil si no se ha autenticado).
func (s *Service) Session() *entity.Session { return s.session.Load() }

// WithSession deriva un Service que usa la sesión indicada, sin afectar al original.
func (s *Service) WithSession(sess *entity.Session) *Service {
	derived := *s
	derived.session = new(atomic.Pointer[entity.Session])
	if sess != nil {
		cp := *sess
		derived.session.Store(&cp)
	}
	return &derived
}

// ── Autenticación ─────────────────────────────────────────────────────────────

// Authenticate obtiene la semilla, la firma con raíz SemillaModel y la canjea por un token.
// alternateURL (opcional) es la URL de autenticación de otro host, p. ej. la urlOpcional
// publicada en el directorio por un comprador.
func (s *Service) Authenticate(ctx context.Context, alternateURL string) (*entity.Session, error) {
	const op = "ecf.Authenticate"
	if !s.cred.Usable() {
		return nil, domain.Errorf(domain.KindCredential, op, "credencial sin llave o certificado")
	}
	log := s.logger.With().Str("op", op).Str("auth_url", alternateURL).Logger()

	seed, err := s.gateway.Seed(ctx, alternateURL)
	if err != nil {
		log.Warn().Err(err).Msg("ecf: no se pudo obtener la semilla")
		return nil, authError(op, err)
	}
	signed, err := s.signer.Sign(seed, entity.RootSemilla)
	if err != nil {
		if domain.KindOf(err) == domain.KindCredential {
			return nil, err
		}
		return nil, authError(op, err)
	}
	sess, err := s.gateway.ValidateSeed(ctx, alternateURL, signed)
	if err != nil {
		log.Warn().Err(err).Msg("ecf: la DGII rechazó la semilla firmada")
		return nil, authError(op, err)
	}
	if !sess.Valid() {
		return nil, domain.Errorf(domain.KindAuthentication, op, "token vacío")
	}

	out := *sess
	out.Environment = s.env
	if out.IssuedAt.IsZero() {
		out.IssuedAt = s.now()
	}
	s.session.Store(&out)
	log.Info().Time("expires_at", out.ExpiresAt).Msg("ecf: sesión autenticada")
	cp := out
	return &cp, nil
}

// authError toda falla del handshake es ErrAuthentication y solo eso: de la causa se conservan
// el status, el código y el texto, no su Kind (un 401 de la semilla no es SessionExpired).
func authError(op string, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		return &domain.Error{Kind: domain.KindAuthentication, Op: op, Err: err}
	}
	if de.Kind == domain.KindAuthentication {
		return err
	}
	return &domain.Error{
		Kind:     domain.KindAuthentication,
		Op:       op,
		Status:   de.Status,
		Code:     de.Code,
		Message:  err.Error(),
		Messages: de.Messages,
	}
}

func (s *Service) requireSession(op string) (*entity.Session, error) {
	sess := s.session.Load()
	if !sess.Valid() {
		return nil, domain.Errorf(domain.KindAuthentication, op, "no hay sesión activa: llame Authenticate primero")
	}
	return sess, nil
}

// ── Firma ─────────────────────────────────────────────────────────────────────

// Sign firma el XML con la credencial del emisor anclando la firma en rootName.
func (s *Service) Sign(xmlBytes []byte, rootName string) ([]byte, error) {
	const op = "ecf.Sign"
	if !s.cred.Usable() {
		return nil, domain.Errorf(domain.KindCredential, op, "credencial sin llave o certificado")
	}
	if strings.TrimSpace(rootName) == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "rootName vacío")
	}
	signed, err := s.signer.Sign(xmlBytes, rootName)
	if err != nil {
		if domain.KindOf(err) != domain.KindUnknown {
			return nil, err
		}
		return nil, domain.E(domain.KindSigning, op, err)
	}
	return signed, nil
}

// ── Envíos ────────────────────────────────────────────────────────────────────

// SendElectronicDocument envía un e-CF firmado a recepción y retorna el trackId.
func (s *Service) SendElectronicDocument(ctx context.Context, signedXML []byte, fileName string) (*entity.SubmissionReceipt, error) {
	const op = "ecf.SendElectronicDocument"
	sess, err := s.prepareUpload(op, signedXML, fileName)
	if err != nil {
		return nil, err
	}
	receipt, err := s.gateway.SendDocument(ctx, sess, signedXML, fileName)
	if err != nil {
		s.logFailure(op, fileName, err)
		return nil, err
	}
	s.logger.Info().Str("op", op).Str("file", fileName).Str("track_id", receipt.TrackID).Msg("ecf: documento recibido")
	return receipt, nil
}

// SendSummary envía un resumen RFCE (tipo 32) firmado. Un rechazo llega como
// ErrValidationRejection con código 2 y los mensajes de la DGII.
func (s *Service) SendSummary(ctx context.Context, signedXML []byte, fileName string) (*entity.SummaryReceipt, error) {
	const op = "ecf.SendSummary"
	sess, err := s.prepareUpload(op, signedXML, fileName)
	if err != nil {
		return nil, err
	}
	receipt, err := s.gateway.SendSummary(ctx, sess, signedXML, fileName)
	if err != nil {
		s.logFailure(op, fileName, err)
		return nil, err
	}
	s.logger.Info().Str("op", op).Str("file", fileName).Str("estado", receipt.Status.Label()).Msg("ecf: resumen recibido")
	return receipt, nil
}

// SendCommercialApproval envía una aprobación/rechazo comercial (ARECF) firmada.
func (s *Service) SendCommercialApproval(ctx context.Context, signedXML []byte, fileName string) (*entity.ApprovalReceipt, error) {
	const op = "ecf.SendCommercialApproval"
	sess, err := s.prepareUpload(op, signedXML, fileName)
	if err != nil {
		return nil, err
	}
	receipt, err := s.gateway.SendCommercialApproval(ctx, sess, signedXML, fileName)
	if err != nil {
		s.logFailure(op, fileName, err)
		return nil, err
	}
	return receipt, nil
}

// VoidSequences envía una anulación de rangos de e-NCF (ANECF) firmada.
func (s *Service) VoidSequences(ctx context.Context, signedXML []byte, fileName string) (*entity.VoidReceipt, error) {
	const op = "ecf.VoidSequences"
	sess, err := s.prepareUpload(op, signedXML, fileName)
	if err != nil {
		return nil, err
	}
	receipt, err := s.gateway.VoidSequences(ctx, sess, signedXML, fileName)
	if err != nil {
		s.logFailure(op, fileName, err)
		return nil, err
	}
	return receipt, nil
}

func (s *Service) prepareUpload(op string, signedXML []byte, fileName string) (*entity.Session, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "nombre de archivo vacío")
	}
	if len(signedXML) == 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "XML firmado vacío")
	}
	return s.requireSession(op)
}

func (s *Service) logFailure(op, fileName string, err error) {
	s.logger.Warn().
		Err(err).
		Str("op", op).
		Str("file", fileName).
		Str("kind", domain.KindOf(err).String()).
		Int("codigo", domain.AuthorityCode(err)).
		Msg("ecf: envío fallido")
}

// ── Directorio y estatus ──────────────────────────────────────────────────────

// CustomerDirectory URLs publicadas por un contribuyente receptor. Lista vacía no es error.
func (s *Service) CustomerDirectory(ctx context.Context, rnc string) ([]entity.DirectoryEntry, error) {
	const op = "ecf.CustomerDirectory"
	rnc = strings.TrimSpace(rnc)
	if rnc == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "RNC vacío")
	}
	sess, err := s.requireSession(op)
	if err != nil {
		return nil, err
	}
	return s.gateway.Directory(ctx, sess, rnc)
}

// ListDirectory directorio completo de receptores electrónicos.
func (s *Service) ListDirectory(ctx context.Context) ([]entity.DirectoryEntry, error) {
	sess, err := s.requireSession("ecf.ListDirectory")
	if err != nil {
		return nil, err
	}
	return s.gateway.DirectoryList(ctx, sess)
}

// ServiceStatus estatus público de los servicios de la DGII.
func (s *Service) ServiceStatus(ctx context.Context) ([]entity.ServiceStatus, error) {
	return s.gateway.ServiceStatus(ctx)
}
