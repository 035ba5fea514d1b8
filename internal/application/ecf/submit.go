package ecf

import (
	"context"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	pkgecf "github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// SubmitResult resultado del pipeline Submit. Exactamente uno de Receipt / Summary viene
// poblado según el tipo de documento.
type SubmitResult struct {
	Envelope entity.SignedEnvelope
	Receipt  *entity.SubmissionReceipt
	Summary  *entity.SummaryReceipt
}

// Submit ejecuta el flujo completo para un documento de negocio ya serializado:
//
//	Validar → Firmar (raíz ECF o RFCE) → Código de seguridad → Nombre {RNC}{eNCF}.xml → Enviar
//
// El sobre recibido no se modifica. Si el envío falla, el resultado trae el documento firmado
// junto al error para que el llamador pueda reintentar sin volver a firmar.
func (s *Service) Submit(ctx context.Context, doc entity.DocumentEnvelope) (*SubmitResult, error) {
	const op = "ecf.Submit"

	// ═══ 1. Validar sobre ═══
	encf, err := entity.ParseENCF(string(doc.ENCF))
	if err != nil {
		return nil, domain.E(domain.KindInvalidInput, op, err)
	}
	if err := pkgecf.ValidateTaxID(doc.IssuerRNC); err != nil {
		return nil, domain.E(domain.KindInvalidInput, op, err)
	}
	if len(doc.XML) == 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "XML vacío para %s", encf)
	}
	doc.ENCF = encf
	doc.IssuerRNC = pkgecf.NormalizeTaxID(doc.IssuerRNC)
	log := s.logger.With().Str("op", op).Str("encf", string(encf)).Str("rnc", doc.IssuerRNC).Logger()

	if _, err := s.requireSession(op); err != nil {
		return nil, err
	}

	// ═══ 2. Firmar ═══
	signed, err := s.Sign(doc.XML, doc.Type().RootElement())
	if err != nil {
		log.Warn().Err(err).Msg("ecf: error firmando documento")
		return nil, err
	}

	// ═══ 3. Código de seguridad ═══
	code, err := securityCode(doc.Type(), signed)
	if err != nil {
		return nil, domain.E(domain.KindSigning, op, err)
	}
	result := &SubmitResult{Envelope: entity.SignedEnvelope{
		DocumentEnvelope: doc,
		SignedXML:        signed,
		SecurityCode:     code,
	}}
	fileName := doc.FileName()

	// ═══ 4. Enviar ═══
	if doc.Type().IsSummary() {
		result.Summary, err = s.SendSummary(ctx, signed, fileName)
	} else {
		result.Receipt, err = s.SendElectronicDocument(ctx, signed, fileName)
	}
	if err != nil {
		return result, err
	}
	log.Info().Str("file", fileName).Str("codigo_seguridad", code).Msg("ecf: documento enviado")
	return result, nil
}

// securityCode un resumen RFCE declara su propio CodigoSeguridadeCF (el del e-CF completo);
// en cualquier otro caso se usan los primeros 6 caracteres del SignatureValue.
func securityCode(t entity.DocumentType, signedXML []byte) (string, error) {
	if t.IsSummary() {
		if code := summarySecurityCode(signedXML); code != "" {
			return code, nil
		}
	}
	return signatureSecurityCode(signedXML)
}

func summarySecurityCode(signedXML []byte) string {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = pkgecf.CharsetReader
	if err := doc.ReadFromBytes(signedXML); err != nil || doc.Root() == nil {
		return ""
	}
	el := doc.Root().FindElement(".//CodigoSeguridadeCF")
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

func signatureSecurityCode(signedXML []byte) (string, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = pkgecf.CharsetReader
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return "", err
	}
	el := doc.FindElement("//SignatureValue")
	if el == nil {
		return "", domain.Errorf(domain.KindSigning, "ecf.securityCode", "documento sin SignatureValue")
	}
	return pkgecf.SecurityCodeFromSignature(el.Text())
}
