// Package transformer convierte documentos e-CF en JSON (formato de los ejemplos de la DGII)
// a XML conservando el orden de las claves, que la norma técnica exige.
package transformer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/beevik/etree"
)

const (
	attrPrefix = "@"
	textKey    = "#text"
)

// ErrInvalidDocument el JSON no describe un documento XML (raíz única, nombres válidos).
var ErrInvalidDocument = errors.New("transformer: documento JSON inválido")

// JSONToXML lee un objeto JSON con una sola clave (el elemento raíz) y produce el XML.
// Reglas: los objetos son elementos en el orden de sus claves, los arreglos repiten el
// elemento, "@clave" es atributo, "#text" es el texto del elemento y null omite el nodo.
func JSONToXML(r io.Reader) ([]byte, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	roots := 0
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		roots++
		if roots > 1 {
			return nil, fmt.Errorf("%w: más de un elemento raíz", ErrInvalidDocument)
		}
		if err := decodeValue(dec, &doc.Element, name); err != nil {
			return nil, err
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if len(doc.ChildElements()) != 1 {
		return nil, fmt.Errorf("%w: se espera exactamente un elemento raíz", ErrInvalidDocument)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: contenido después del objeto raíz", ErrInvalidDocument)
	}
	return doc.WriteToBytes()
}

// JSONBytesToXML atajo sobre JSONToXML.
func JSONBytesToXML(data []byte) ([]byte, error) {
	return JSONToXML(bytes.NewReader(data))
}

// decodeValue agrega bajo parent el/los elementos name con el valor siguiente del stream.
func decodeValue(dec *json.Decoder, parent *etree.Element, name string) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			el, err := newChild(parent, name)
			if err != nil {
				return err
			}
			return decodeObject(dec, el)
		case '[':
			for dec.More() {
				if err := decodeValue(dec, parent, name); err != nil {
					return err
				}
			}
			_, err := dec.Token() // ']'
			return err
		}
		return fmt.Errorf("%w: delimitador inesperado %q", ErrInvalidDocument, v)
	case nil:
		return nil
	default:
		el, err := newChild(parent, name)
		if err != nil {
			return err
		}
		el.SetText(scalar(v))
		return nil
	}
}

// decodeObject consume las claves de un objeto ya abierto hasta su '}'.
func decodeObject(dec *json.Decoder, el *etree.Element) error {
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return err
		}
		switch {
		case key == textKey:
			tok, err := dec.Token()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
			}
			if tok != nil {
				if _, isDelim := tok.(json.Delim); isDelim {
					return fmt.Errorf("%w: %q debe ser escalar", ErrInvalidDocument, textKey)
				}
				el.SetText(scalar(tok))
			}
		case strings.HasPrefix(key, attrPrefix):
			attr := strings.TrimPrefix(key, attrPrefix)
			if !validName(attr) {
				return fmt.Errorf("%w: atributo %q", ErrInvalidDocument, attr)
			}
			tok, err := dec.Token()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
			}
			if _, isDelim := tok.(json.Delim); isDelim {
				return fmt.Errorf("%w: atributo %q debe ser escalar", ErrInvalidDocument, attr)
			}
			if tok != nil {
				el.CreateAttr(attr, scalar(tok))
			}
		default:
			if err := decodeValue(dec, el, key); err != nil {
				return err
			}
		}
	}
	return expectDelim(dec, '}')
}

func newChild(parent *etree.Element, name string) (*etree.Element, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: nombre de elemento %q", ErrInvalidDocument, name)
	}
	return parent.CreateElement(name), nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: se esperaba una clave", ErrInvalidDocument)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: se esperaba %q", ErrInvalidDocument, want)
	}
	return nil
}

func scalar(tok json.Token) string {
	switch v := tok.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	}
	return fmt.Sprint(tok)
}

// validName nombres XML simples (con prefijo opcional), suficientes para los esquemas e-CF.
func validName(name string) bool {
	if name == "" || (strings.HasPrefix(strings.ToLower(name), "xml") && !strings.HasPrefix(name, "xmlns")) {
		return false
	}
	for i, r := range name {
		switch {
		case unicode.IsLetter(r) || r == '_':
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.' || r == ':'):
		default:
			return false
		}
	}
	return true
}
