// Package metrics métricas Prometheus de las llamadas al gateway e-CF.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhoicas/ecf-dgii/internal/application/ecf"
	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

const namespace = "ecf_dgii"

// OutcomeOK etiqueta de resultado para llamadas exitosas. Los fallos usan el Kind del error.
const OutcomeOK = "ok"

// Collectors contadores e histogramas de las llamadas a la DGII.
type Collectors struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewCollectors registra los collectors en reg. Si ya estaban registrados reutiliza los existentes.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Llamadas al gateway e-CF por operación y resultado.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Latencia de las llamadas al gateway e-CF.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"operation"})

	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &Collectors{Requests: requests, Duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Gateway decora un ecf.Gateway midiendo cada llamada.
type Gateway struct {
	next ecf.Gateway
	m    *Collectors
}

// NewGateway envuelve next.
func NewGateway(next ecf.Gateway, m *Collectors) *Gateway {
	return &Gateway{next: next, m: m}
}

// track mide la llamada op; se usa como defer g.track(op)(&err).
func (g *Gateway) track(op string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		outcome := OutcomeOK
		if *errp != nil {
			outcome = domain.KindOf(*errp).String()
		}
		g.m.Requests.WithLabelValues(op, outcome).Inc()
		g.m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (g *Gateway) Seed(ctx context.Context, authURL string) (_ []byte, err error) {
	defer g.track("seed")(&err)
	return g.next.Seed(ctx, authURL)
}

func (g *Gateway) ValidateSeed(ctx context.Context, authURL string, signedSeed []byte) (_ *entity.Session, err error) {
	defer g.track("validate_seed")(&err)
	return g.next.ValidateSeed(ctx, authURL, signedSeed)
}

func (g *Gateway) SendDocument(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (_ *entity.SubmissionReceipt, err error) {
	defer g.track("send_document")(&err)
	return g.next.SendDocument(ctx, sess, signedXML, fileName)
}

func (g *Gateway) SendSummary(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (_ *entity.SummaryReceipt, err error) {
	defer g.track("send_summary")(&err)
	return g.next.SendSummary(ctx, sess, signedXML, fileName)
}

func (g *Gateway) SendCommercialApproval(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (_ *entity.ApprovalReceipt, err error) {
	defer g.track("send_approval")(&err)
	return g.next.SendCommercialApproval(ctx, sess, signedXML, fileName)
}

func (g *Gateway) VoidSequences(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (_ *entity.VoidReceipt, err error) {
	defer g.track("void_sequences")(&err)
	return g.next.VoidSequences(ctx, sess, signedXML, fileName)
}

func (g *Gateway) TrackResult(ctx context.Context, sess *entity.Session, trackID string) (_ *entity.TrackingRecord, err error) {
	defer g.track("track_result")(&err)
	return g.next.TrackResult(ctx, sess, trackID)
}

func (g *Gateway) TrackIDs(ctx context.Context, sess *entity.Session, rnc, encf string) (_ []entity.TrackingRecord, err error) {
	defer g.track("track_ids")(&err)
	return g.next.TrackIDs(ctx, sess, rnc, encf)
}

func (g *Gateway) Inquiry(ctx context.Context, sess *entity.Session, rnc, encf, buyerRNC, securityCode string) (_ *entity.SummaryInquiryResult, err error) {
	defer g.track("inquiry")(&err)
	return g.next.Inquiry(ctx, sess, rnc, encf, buyerRNC, securityCode)
}

func (g *Gateway) Directory(ctx context.Context, sess *entity.Session, rnc string) (_ []entity.DirectoryEntry, err error) {
	defer g.track("directory")(&err)
	return g.next.Directory(ctx, sess, rnc)
}

func (g *Gateway) DirectoryList(ctx context.Context, sess *entity.Session) (_ []entity.DirectoryEntry, err error) {
	defer g.track("directory_list")(&err)
	return g.next.DirectoryList(ctx, sess)
}

func (g *Gateway) ServiceStatus(ctx context.Context) (_ []entity.ServiceStatus, err error) {
	defer g.track("service_status")(&err)
	return g.next.ServiceStatus(ctx)
}
