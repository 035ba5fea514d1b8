// Servicio de firma digital XMLDSig envuelta para e-CF, semillas de autenticación,
// resúmenes RFCE y aprobaciones comerciales. Inserta <Signature> como último hijo de la raíz.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

const opSign = "signer.Sign"
const opVerify = "signer.Verify"

// C14N 1.0 inclusivo (REC-xml-c14n-20010315, sin comentarios): conserva todas las
// declaraciones de namespace en alcance, usadas o no.
var canonicalizer = dsig.MakeC14N10RecCanonicalizer()

// DigitalSignatureService firma documentos con la credencial del emisor. Es inmutable y
// seguro para uso concurrente.
type DigitalSignatureService struct {
	cred *entity.Credential
}

// NewDigitalSignatureService crea el servicio. Una credencial no utilizable no falla aquí:
// cada Sign retorna ErrCredential sin procesar el documento.
func NewDigitalSignatureService(cred *entity.Credential) *DigitalSignatureService {
	return &DigitalSignatureService{cred: cred}
}

// Sign implementa pkg/ecf.Signer.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, rootName string) ([]byte, error) {
	if !s.cred.Usable() {
		return nil, domain.Errorf(domain.KindCredential, opSign, "credencial sin llave o certificado")
	}
	priv, ok := s.cred.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, domain.Errorf(domain.KindCredential, opSign, "la llave privada debe ser RSA")
	}
	if len(bytes.TrimSpace(xmlBytes)) == 0 {
		return nil, domain.Errorf(domain.KindSigning, opSign, "XML vacío")
	}

	doc, err := parse(xmlBytes)
	if err != nil {
		return nil, domain.E(domain.KindSigning, opSign, err)
	}
	root := doc.Root()
	if root.Tag != rootName {
		return nil, domain.Errorf(domain.KindSigning, opSign, "raíz %q no coincide con %q", root.Tag, rootName)
	}
	if len(findSignatures(root)) > 0 {
		return nil, domain.Errorf(domain.KindSigning, opSign, "el documento ya contiene una firma")
	}

	// 1) Digest del documento completo (C14N, transformación enveloped = documento sin firma)
	docDigest, err := documentDigest(root)
	if err != nil {
		return nil, domain.E(domain.KindSigning, opSign, err)
	}

	// 2) <Signature> como último hijo de la raíz; SignedInfo se canonicaliza en ese contexto
	sig := root.CreateElement(signatureTag)
	sig.CreateAttr("xmlns", NamespaceDS)
	signedInfo := buildSignedInfo(sig, docDigest)
	canonicalSignedInfo, err := canonicalizeInContext(signedInfo)
	if err != nil {
		return nil, domain.E(domain.KindSigning, opSign, err)
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, domain.E(domain.KindSigning, opSign, fmt.Errorf("firmar SignedInfo: %w", err))
	}

	// 3) SignatureValue + KeyInfo (X509Certificate)
	sig.CreateElement("SignatureValue").SetText(base64.StdEncoding.EncodeToString(signatureValue))
	x509Data := sig.CreateElement("KeyInfo").CreateElement("X509Data")
	x509Data.CreateElement("X509Certificate").SetText(base64.StdEncoding.EncodeToString(s.cred.Certificate.Raw))

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, domain.E(domain.KindSigning, opSign, err)
	}
	return out, nil
}

// Verify comprueba que el documento tenga exactamente una firma anclada en la raíz, que el
// digest corresponda al contenido y que SignatureValue sea válido. Si cert es nil se usa el
// certificado embebido en KeyInfo.
func Verify(signedXML []byte, cert *x509.Certificate) error {
	doc, err := parse(signedXML)
	if err != nil {
		return domain.E(domain.KindSigning, opVerify, err)
	}
	root := doc.Root()
	sigs := findSignatures(root)
	if len(sigs) != 1 {
		return domain.Errorf(domain.KindSigning, opVerify, "se esperaba una firma, hay %d", len(sigs))
	}
	sig := sigs[0]
	if sig.Parent() != root {
		return domain.Errorf(domain.KindSigning, opVerify, "la firma no es hija de la raíz")
	}

	signedInfo := sig.SelectElement("SignedInfo")
	if signedInfo == nil {
		return domain.Errorf(domain.KindSigning, opVerify, "falta SignedInfo")
	}
	if err := checkAlgorithms(signedInfo); err != nil {
		return domain.E(domain.KindSigning, opVerify, err)
	}
	digestEl := signedInfo.FindElement("Reference/DigestValue")
	if digestEl == nil {
		return domain.Errorf(domain.KindSigning, opVerify, "falta DigestValue")
	}

	if cert == nil {
		certEl := sig.FindElement("KeyInfo/X509Data/X509Certificate")
		if certEl == nil {
			return domain.Errorf(domain.KindSigning, opVerify, "falta X509Certificate")
		}
		der, err := base64.StdEncoding.DecodeString(compact(certEl.Text()))
		if err != nil {
			return domain.E(domain.KindSigning, opVerify, fmt.Errorf("decodificar certificado: %w", err))
		}
		if cert, err = x509.ParseCertificate(der); err != nil {
			return domain.E(domain.KindSigning, opVerify, fmt.Errorf("parsear certificado: %w", err))
		}
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return domain.Errorf(domain.KindSigning, opVerify, "el certificado no tiene llave pública RSA")
	}

	canonicalSignedInfo, err := canonicalizeInContext(signedInfo)
	if err != nil {
		return domain.E(domain.KindSigning, opVerify, err)
	}

	// Transformación enveloped: el digest se calcula sobre el documento sin la firma.
	unsigned := doc.Copy()
	unsignedRoot := unsigned.Root()
	for _, s := range findSignatures(unsignedRoot) {
		unsignedRoot.RemoveChild(s)
	}
	digest, err := documentDigest(unsignedRoot)
	if err != nil {
		return domain.E(domain.KindSigning, opVerify, err)
	}
	if digest != compact(digestEl.Text()) {
		return domain.Errorf(domain.KindSigning, opVerify, "el digest no corresponde al documento")
	}

	valueEl := sig.SelectElement("SignatureValue")
	if valueEl == nil {
		return domain.Errorf(domain.KindSigning, opVerify, "falta SignatureValue")
	}
	signatureValue, err := base64.StdEncoding.DecodeString(compact(valueEl.Text()))
	if err != nil {
		return domain.E(domain.KindSigning, opVerify, fmt.Errorf("decodificar SignatureValue: %w", err))
	}
	hash := sha256.Sum256(canonicalSignedInfo)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], signatureValue); err != nil {
		return domain.E(domain.KindSigning, opVerify, fmt.Errorf("firma inválida: %w", err))
	}
	return nil
}

// SignatureValue extrae el valor de la firma (base64, sin espacios) de un XML firmado.
func SignatureValue(signedXML []byte) (string, error) {
	doc, err := parse(signedXML)
	if err != nil {
		return "", err
	}
	for _, sig := range findSignatures(doc.Root()) {
		if v := sig.SelectElement("SignatureValue"); v != nil {
			return compact(v.Text()), nil
		}
	}
	return "", fmt.Errorf("signer: el documento no contiene SignatureValue")
}

// SecurityCode código de seguridad del e-CF firmado (primeros 6 caracteres del SignatureValue).
func SecurityCode(signedXML []byte) (string, error) {
	v, err := SignatureValue(signedXML)
	if err != nil {
		return "", err
	}
	return ecf.SecurityCodeFromSignature(v)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func parse(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = ecf.CharsetReader
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsear XML: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("documento sin raíz")
	}
	// El contenido queda en UTF-8 después de leerlo; la declaración debe decir lo mismo.
	for _, tok := range doc.Child {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			pi.Inst = `version="1.0" encoding="UTF-8"`
		}
	}
	return doc, nil
}

func findSignatures(root *etree.Element) []*etree.Element {
	var out []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			if child.Tag == signatureTag {
				out = append(out, child)
				continue
			}
			walk(child)
		}
	}
	walk(root)
	return out
}

func buildSignedInfo(sig *etree.Element, docDigestB64 string) *etree.Element {
	si := sig.CreateElement("SignedInfo")
	si.CreateElement("CanonicalizationMethod").CreateAttr("Algorithm", AlgC14N)
	si.CreateElement("SignatureMethod").CreateAttr("Algorithm", AlgRSASHA256)
	ref := si.CreateElement("Reference")
	ref.CreateAttr("URI", ReferenceURI)
	ref.CreateElement("Transforms").CreateElement("Transform").CreateAttr("Algorithm", TransformEnveloped)
	ref.CreateElement("DigestMethod").CreateAttr("Algorithm", AlgSHA256)
	ref.CreateElement("DigestValue").SetText(docDigestB64)
	return si
}

func checkAlgorithms(signedInfo *etree.Element) error {
	expected := map[string]string{
		"CanonicalizationMethod":         AlgC14N,
		"SignatureMethod":                AlgRSASHA256,
		"Reference/DigestMethod":         AlgSHA256,
		"Reference/Transforms/Transform": TransformEnveloped,
	}
	for path, alg := range expected {
		el := signedInfo.FindElement(path)
		if el == nil {
			return fmt.Errorf("falta %s", path)
		}
		if got := el.SelectAttrValue("Algorithm", ""); got != alg {
			return fmt.Errorf("%s: algoritmo %q no soportado", path, got)
		}
	}
	if uri := signedInfo.FindElement("Reference").SelectAttrValue("URI", "-"); uri != ReferenceURI {
		return fmt.Errorf("Reference URI %q no soportada", uri)
	}
	return nil
}

// documentDigest digest del elemento raíz canonicalizado. La declaración XML y lo que está
// fuera de la raíz no forman parte del C14N.
func documentDigest(root *etree.Element) (string, error) {
	canonical, err := canonicalizer.Canonicalize(root)
	if err != nil {
		return "", fmt.Errorf("canonicalizar documento: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

// canonicalizeInContext canonicaliza SignedInfo como subconjunto del documento: hereda todas
// las declaraciones de namespace en alcance de sus ancestros (<Signature>, la raíz).
func canonicalizeInContext(signedInfo *etree.Element) ([]byte, error) {
	si := signedInfo.Copy()
	for prefix, uri := range inScopeNamespaces(signedInfo.Parent()) {
		if hasNamespaceDecl(si, prefix) {
			continue
		}
		if prefix == "" {
			si.CreateAttr("xmlns", uri)
		} else {
			si.CreateAttr("xmlns:"+prefix, uri)
		}
	}
	out, err := canonicalizer.Canonicalize(si)
	if err != nil {
		return nil, fmt.Errorf("canonicalizar SignedInfo: %w", err)
	}
	return out, nil
}

// inScopeNamespaces declaraciones visibles desde el elemento; la más cercana gana. Un xmlns=""
// deshace el namespace por defecto y no se hereda.
func inScopeNamespaces(el *etree.Element) map[string]string {
	ns := map[string]string{}
	seen := map[string]bool{}
	for ; el != nil; el = el.Parent() {
		for _, a := range el.Attr {
			prefix, ok := namespacePrefix(a)
			if !ok || seen[prefix] {
				continue
			}
			seen[prefix] = true
			if a.Value != "" {
				ns[prefix] = a.Value
			}
		}
	}
	return ns
}

func hasNamespaceDecl(el *etree.Element, prefix string) bool {
	for _, a := range el.Attr {
		if p, ok := namespacePrefix(a); ok && p == prefix {
			return true
		}
	}
	return false
}

// namespacePrefix prefijo declarado por a ("" para el namespace por defecto).
func namespacePrefix(a etree.Attr) (string, bool) {
	switch {
	case a.Space == "xmlns":
		return a.Key, true
	case a.Space == "" && a.Key == "xmlns":
		return "", true
	}
	return "", false
}

func compact(s string) string { return strings.Join(strings.Fields(s), "") }

var _ ecf.Signer = (*DigitalSignatureService)(nil)
