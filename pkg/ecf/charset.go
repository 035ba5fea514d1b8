package ecf

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// CharsetReader convierte a UTF-8 la entrada declarada con otro charset (ISO-8859-1, windows-1252...).
// Tiene la firma de xml.Decoder.CharsetReader y etree.ReadSettings.CharsetReader.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	if isUTF8(label) {
		return input, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("ecf: charset no soportado %q: %w", label, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// DecodeToUTF8 convierte un archivo completo a UTF-8. Con label vacío o utf-8 lo devuelve intacto.
func DecodeToUTF8(data []byte, label string) ([]byte, error) {
	if isUTF8(label) {
		return data, nil
	}
	r, err := CharsetReader(label, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func isUTF8(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}
