package corpus

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// minConfidence is the lowest chardet confidence (0-100) accepted as a match.
const minConfidence = 10

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// chardet names that the WHATWG index spells differently
var charsetAliases = map[string]string{
	"gb-18030": "gb18030",
}

// decodeText detects the encoding of data and returns it as UTF-8 along with
// the charset name that was used.
func decodeText(data []byte) (string, string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), "UTF-8", nil
	case bytes.HasPrefix(data, bomUTF16LE):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), "UTF-16LE", data)
	case bytes.HasPrefix(data, bomUTF16BE):
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), "UTF-16BE", data)
	case utf8.Valid(data):
		return string(data), "UTF-8", nil
	}

	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil {
		return "", "", fmt.Errorf("no charset matched: %w", err)
	}
	if result.Confidence < minConfidence {
		return "", "", fmt.Errorf("best guess %s has confidence %d", result.Charset, result.Confidence)
	}

	enc, err := encodingFor(result.Charset)
	if err != nil {
		return "", "", err
	}
	return decodeWith(enc, result.Charset, data)
}

// encodingFor resolves a detected charset name to a decoder.
func encodingFor(charset string) (encoding.Encoding, error) {
	name := strings.ToLower(charset)
	if alias, ok := charsetAliases[name]; ok {
		name = alias
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %s", charset)
	}
	return enc, nil
}

func decodeWith(enc encoding.Encoding, charset string, data []byte) (string, string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("decode as %s: %w", charset, err)
	}
	return string(out), charset, nil
}
