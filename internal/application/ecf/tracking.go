package ecf

import (
	"context"
	"strings"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

// ── Consulta de estado ────────────────────────────────────────────────────────

// StatusByTrackID consulta la disposición de un envío por su trackId. Un estado que la DGII
// reporte fuera de los cuatro conocidos es ErrProtocol; "no encontrado" es ErrNotFound.
func (s *Service) StatusByTrackID(ctx context.Context, trackID string) (*entity.TrackingRecord, error) {
	const op = "ecf.StatusByTrackID"
	trackID = strings.TrimSpace(trackID)
	if trackID == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "trackId vacío")
	}
	sess, err := s.requireSession(op)
	if err != nil {
		return nil, err
	}
	rec, err := s.gateway.TrackResult(ctx, sess, trackID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("op", op).Str("track_id", trackID).Str("estado", rec.Status.Label()).Msg("ecf: estado consultado")
	return rec, nil
}

// StatusesByBusinessKey lista los envíos de un e-NCF. Sin envíos registrados retorna ErrNotFound.
func (s *Service) StatusesByBusinessKey(ctx context.Context, rnc, encf string) ([]entity.TrackingRecord, error) {
	const op = "ecf.StatusesByBusinessKey"
	rnc, encf = strings.TrimSpace(rnc), strings.ToUpper(strings.TrimSpace(encf))
	if rnc == "" || encf == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "RNC y e-NCF son obligatorios")
	}
	sess, err := s.requireSession(op)
	if err != nil {
		return nil, err
	}
	return s.gateway.TrackIDs(ctx, sess, rnc, encf)
}

// InquirySummary consulta un resumen tipo 32. El resultado trae el código de seguridad y el
// monto total registrados; la comparación con lo enviado queda a cargo del llamador.
// securityCode se envía tal cual.
func (s *Service) InquirySummary(ctx context.Context, rnc, encf, buyerRNC, securityCode string) (*entity.SummaryInquiryResult, error) {
	const op = "ecf.InquirySummary"
	rnc, encf = strings.TrimSpace(rnc), strings.ToUpper(strings.TrimSpace(encf))
	if rnc == "" || encf == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "RNC y e-NCF son obligatorios")
	}
	sess, err := s.requireSession(op)
	if err != nil {
		return nil, err
	}
	return s.gateway.Inquiry(ctx, sess, rnc, encf, strings.TrimSpace(buyerRNC), securityCode)
}

// Refresh vuelve a consultar un envío ya conocido. Si la DGII reporta un cambio desde un
// estado terminal a otro distinto, la respuesta es inconsistente y se retorna ErrProtocol.
func (s *Service) Refresh(ctx context.Context, previous *entity.TrackingRecord) (*entity.TrackingRecord, error) {
	const op = "ecf.Refresh"
	if previous == nil {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "registro previo nulo")
	}
	if previous.Status.Terminal() {
		s.logger.Debug().Str("op", op).Str("track_id", previous.TrackID).Msg("ecf: estado terminal, se consulta igualmente")
	}
	next, err := s.StatusByTrackID(ctx, previous.TrackID)
	if err != nil {
		return nil, err
	}
	if !previous.Status.CanTransitionTo(next.Status) {
		return nil, domain.Errorf(domain.KindProtocol, op,
			"transición inválida %s → %s para trackId %s", previous.Status.Label(), next.Status.Label(), previous.TrackID)
	}
	return next, nil
}
