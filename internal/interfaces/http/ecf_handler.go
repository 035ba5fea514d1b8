package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	appecf "github.com/jhoicas/ecf-dgii/internal/application/ecf"
	"github.com/jhoicas/ecf-dgii/internal/application/dto"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/transformer"
)

// ECFService contrato que consume el handler. Lo implementa *ecf.Service.
type ECFService interface {
	Authenticate(ctx context.Context, alternateURL string) (*entity.Session, error)
	Session() *entity.Session
	Sign(xmlBytes []byte, rootName string) ([]byte, error)
	Submit(ctx context.Context, doc entity.DocumentEnvelope) (*appecf.SubmitResult, error)
	SendElectronicDocument(ctx context.Context, signedXML []byte, fileName string) (*entity.SubmissionReceipt, error)
	SendSummary(ctx context.Context, signedXML []byte, fileName string) (*entity.SummaryReceipt, error)
	SendCommercialApproval(ctx context.Context, signedXML []byte, fileName string) (*entity.ApprovalReceipt, error)
	VoidSequences(ctx context.Context, signedXML []byte, fileName string) (*entity.VoidReceipt, error)
	StatusByTrackID(ctx context.Context, trackID string) (*entity.TrackingRecord, error)
	StatusesByBusinessKey(ctx context.Context, rnc, encf string) ([]entity.TrackingRecord, error)
	InquirySummary(ctx context.Context, rnc, encf, buyerRNC, securityCode string) (*entity.SummaryInquiryResult, error)
	CustomerDirectory(ctx context.Context, rnc string) ([]entity.DirectoryEntry, error)
	ListDirectory(ctx context.Context) ([]entity.DirectoryEntry, error)
	ServiceStatus(ctx context.Context) ([]entity.ServiceStatus, error)
}

// RepresentationGenerator genera el PDF de un XML firmado.
type RepresentationGenerator interface {
	GenerateFromSignedXML(ctx context.Context, signedXML []byte) ([]byte, error)
}

// ECFHandler expone el ciclo de vida e-CF (protegido).
type ECFHandler struct {
	svc ECFService
	pdf RepresentationGenerator
}

// NewECFHandler construye el handler.
func NewECFHandler(svc ECFService, pdf RepresentationGenerator) *ECFHandler {
	return &ECFHandler{svc: svc, pdf: pdf}
}

// ── Sesión ────────────────────────────────────────────────────────────────────

// Authenticate godoc
// @Summary      Autenticar contra la DGII (semilla firmada)
// @Tags         ecf
// @Accept       json
// @Produce      json
// @Param        body  body  dto.SessionRequest  false  "alternate_url opcional (host del comprador)"
// @Success      200   {object}  dto.SessionResponse
// @Failure      401   {object}  dto.ErrorResponse
// @Failure      502   {object}  dto.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ecf/session [post]
func (h *ECFHandler) Authenticate(c *fiber.Ctx) error {
	var in dto.SessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "INVALID_BODY", "cuerpo inválido")
		}
	}
	sess, err := h.svc.Authenticate(c.Context(), strings.TrimSpace(in.AlternateURL))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromSession(sess))
}

// Session godoc
// @Summary      Sesión DGII activa
// @Tags         ecf
// @Produce      json
// @Success      200  {object}  dto.SessionResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ecf/session [get]
func (h *ECFHandler) Session(c *fiber.Ctx) error {
	sess := h.svc.Session()
	if !sess.Valid() {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NO_SESSION", Message: "no hay sesión activa con la DGII"})
	}
	return c.JSON(dto.FromSession(sess))
}

// ── Firma y envíos ────────────────────────────────────────────────────────────

// Sign godoc
// @Summary      Firmar un XML (XMLDSig envuelta)
// @Tags         ecf
// @Accept       json
// @Produce      json
// @Param        body  body  dto.SignRequest  true  "root, xml"
// @Success      200   {object}  dto.SignResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ecf/sign [post]
func (h *ECFHandler) Sign(c *fiber.Ctx) error {
	var in dto.SignRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	signed, err := h.svc.Sign([]byte(in.XML), in.Root)
	if err != nil {
		return writeError(c, err)
	}
	out := dto.SignResponse{SignedXML: string(signed)}
	if code, err := signer.SecurityCode(signed); err == nil {
		out.SecurityCode = code
	}
	return c.JSON(out)
}

// Submit godoc
// @Summary      Firmar y enviar un comprobante (e-CF o resumen RFCE)
// @Tags         ecf
// @Accept       json
// @Produce      json
// @Param        body  body  dto.SubmitRequest  true  "rnc, encf y xml o document (JSON)"
// @Success      201   {object}  dto.SubmitResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Failure      502   {object}  dto.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ecf/documents [post]
func (h *ECFHandler) Submit(c *fiber.Ctx) error {
	var in dto.SubmitRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	xmlBytes := []byte(in.XML)
	if len(in.Document) > 0 {
		if in.XML != "" {
			return badRequest(c, "VALIDATION", "envíe xml o document, no ambos")
		}
		converted, err := transformer.JSONBytesToXML(in.Document)
		if err != nil {
			return badRequest(c, "INVALID_DOCUMENT", err.Error())
		}
		xmlBytes = converted
	}
	rnc := in.RNC
	if rnc == "" {
		rnc = GetRNC(c)
	}

	res, err := h.svc.Submit(c.Context(), entity.DocumentEnvelope{
		IssuerRNC: rnc,
		ENCF:      entity.ENCF(in.ENCF),
		XML:       xmlBytes,
	})
	if err != nil {
		return writeError(c, err)
	}
	out := dto.SubmitResponse{
		ENCF:         string(res.Envelope.ENCF),
		FileName:     res.Envelope.FileName(),
		SecurityCode: res.Envelope.SecurityCode,
		Summary:      dto.FromSummaryReceipt(res.Summary),
		SignedXML:    string(res.Envelope.SignedXML),
	}
	if res.Receipt != nil {
		out.TrackID = res.Receipt.TrackID
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// SendSigned godoc
// @Summary      Enviar un e-CF ya firmado
// @Tags         ecf
// @Accept       json
// @Produce      json
// @Param        body  body  dto.UploadRequest  true  "file_name, xml"
// @Success      201   {object}  dto.ReceiptResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ecf/documents/signed [post]
func (h *ECFHandler) SendSigned(c *fiber.Ctx) error {
	in, err := parseUpload(c)
	if err != nil {
		return err
	}
	r, err := h.svc.SendElectronicDocument(c.Context(), []byte(in.XML), in.FileName)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.ReceiptResponse{TrackID: r.TrackID, Error: r.Error, Message: r.Message})
}

// SendSummary godoc
// @Summary      Enviar un resumen RFCE (tipo 32) ya firmado
// @Tags         ecf
// @Accept       json
// @Produce      json
// @Param        body  body  dto.UploadRequest  true  "file_name, xml"
// @Success      201   {object}  dto.SummaryReceipt
// @Failure      422   {object}  dto.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ecf/summaries [post]
func (h *ECFHandler) SendSummary(c *fiber.Ctx) error {
	in, err := parseUpload(c)
	if err != nil {
		return err
	}
	r, err := h.svc.SendSummary(c.Context(), []byte(in.XML), in.FileName)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromSummaryReceipt(r))
}

// SendApproval godoc
// @Summary      Enviar aprobación comercial (ARECF) firmada
// @Tags         ecf
// @Accept       json
// @Produce      json
// @Param        body  body  dto.UploadRequest  true  "file_name, xml"
// @Success      201   {object}  dto.ApprovalResponse
// @Security     BearerAuth
// @Router       /api/ecf/approvals [post]
func (h *ECFHandler) SendApproval(c *fiber.Ctx) error {
	in, err := parseUpload(c)
	if err != nil {
		return err
	}
	r, err := h.svc.SendCommercialApproval(c.Context(), []byte(in.XML), in.FileName)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.ApprovalResponse{Status: r.Status, Messages: r.Messages})
}

// VoidSequences godoc
// @Summary      Anular rangos de e-NCF (ANECF) firmados
// @Tags         ecf
// @Accept       json
// @Produce      json
// @Param        body  body  dto.UploadRequest  true  "file_name, xml"
// @Success      201   {object}  dto.VoidResponse
// @Security     BearerAuth
// @Router       /api/ecf/voids [post]
func (h *ECFHandler) VoidSequences(c *fiber.Ctx) error {
	in, err := parseUpload(c)
	if err != nil {
		return err
	}
	r, err := h.svc.VoidSequences(c.Context(), []byte(in.XML), in.FileName)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.VoidResponse{RNC: r.RNC, Code: r.Code, Name: r.Name, Messages: r.Messages})
}

// ── Consultas ─────────────────────────────────────────────────────────────────

// TrackByID godoc
// @Summary      Estado de un envío por trackId
// @Tags         ecf
// @Produce      json
// @Param        trackId  path  string  true  "trackId"
// @Success      200  {object}  dto.TrackingResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ecf/tracking/{trackId} [get]
func (h *ECFHandler) TrackByID(c *fiber.Ctx) error {
	rec, err := h.svc.StatusByTrackID(c.Context(), c.Params("trackId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromTrackingRecord(*rec))
}

// TrackByBusinessKey godoc
// @Summary      Envíos registrados para un e-NCF
// @Tags         ecf
// @Produce      json
// @Param        rnc   query  string  false  "RNC del emisor (por defecto el del token)"
// @Param        encf  query  string  true   "e-NCF"
// @Success      200  {array}   dto.TrackingResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ecf/tracking [get]
func (h *ECFHandler) TrackByBusinessKey(c *fiber.Ctx) error {
	rnc := c.Query("rnc", GetRNC(c))
	recs, err := h.svc.StatusesByBusinessKey(c.Context(), rnc, c.Query("encf"))
	if err != nil {
		return writeError(c, err)
	}
	out := make([]dto.TrackingResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, dto.FromTrackingRecord(r))
	}
	return c.JSON(out)
}

// Inquiry godoc
// @Summary      Consultar un resumen RFCE
// @Tags         ecf
// @Produce      json
// @Param        rnc               query  string  false  "RNC del emisor (por defecto el del token)"
// @Param        encf              query  string  true   "e-NCF"
// @Param        rnc_comprador     query  string  false  "RNC del comprador"
// @Param        codigo_seguridad  query  string  true   "Código de seguridad"
// @Success      200  {object}  dto.InquiryResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ecf/inquiry [get]
func (h *ECFHandler) Inquiry(c *fiber.Ctx) error {
	res, err := h.svc.InquirySummary(c.Context(),
		c.Query("rnc", GetRNC(c)), c.Query("encf"), c.Query("rnc_comprador"), c.Query("codigo_seguridad"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromInquiry(res))
}

// Directory godoc
// @Summary      Directorio de receptores electrónicos
// @Tags         ecf
// @Produce      json
// @Param        rnc  path  string  false  "RNC del receptor (vacío = listado completo)"
// @Success      200  {array}  entity.DirectoryEntry
// @Security     BearerAuth
// @Router       /api/ecf/directory/{rnc} [get]
func (h *ECFHandler) Directory(c *fiber.Ctx) error {
	var (
		entries []entity.DirectoryEntry
		err     error
	)
	if rnc := c.Params("rnc"); rnc != "" {
		entries, err = h.svc.CustomerDirectory(c.Context(), rnc)
	} else {
		entries, err = h.svc.ListDirectory(c.Context())
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(entries)
}

// ServiceStatus godoc
// @Summary      Estatus de los servicios de la DGII
// @Tags         ecf
// @Produce      json
// @Success      200  {array}  entity.ServiceStatus
// @Security     BearerAuth
// @Router       /api/ecf/status [get]
func (h *ECFHandler) ServiceStatus(c *fiber.Ctx) error {
	st, err := h.svc.ServiceStatus(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st)
}

// Representation godoc
// @Summary      Representación impresa (PDF) de un e-CF firmado
// @Tags         ecf
// @Accept       json
// @Produce      application/pdf
// @Param        body  body  dto.RepresentationRequest  true  "signed_xml"
// @Success      200
// @Failure      400  {object}  dto.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ecf/representation [post]
func (h *ECFHandler) Representation(c *fiber.Ctx) error {
	var in dto.RepresentationRequest
	if err := c.BodyParser(&in); err != nil || strings.TrimSpace(in.SignedXML) == "" {
		return badRequest(c, "INVALID_BODY", "signed_xml es requerido")
	}
	pdf, err := h.pdf.GenerateFromSignedXML(c.Context(), []byte(in.SignedXML))
	if err != nil {
		return badRequest(c, "INVALID_DOCUMENT", err.Error())
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	return c.Send(pdf)
}

// parseUpload lee el body de los envíos firmados. Si falla ya escribió la respuesta.
func parseUpload(c *fiber.Ctx) (dto.UploadRequest, error) {
	var in dto.UploadRequest
	if err := c.BodyParser(&in); err != nil {
		return in, badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	return in, nil
}
