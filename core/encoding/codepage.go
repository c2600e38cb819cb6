package encoding

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Code pages used by legacy e-book headers.
const (
	CodePageWindows1252 = 1252
	CodePageUTF8        = 65001
	CodePageUTF16LE     = 1200
)

// DecodeCodePage converts text stored in the given Windows code page to a Go
// string. Unknown code pages are treated as UTF-8.
func DecodeCodePage(data []byte, codePage int) (string, error) {
	var t transform.Transformer
	switch codePage {
	case CodePageWindows1252:
		t = charmap.Windows1252.NewDecoder()
	case CodePageUTF16LE:
		t = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	default:
		if utf8.Valid(data) {
			return string(data), nil
		}
		t = unicode.UTF8.NewDecoder()
	}

	out, _, err := transform.Bytes(t, data)
	if err != nil {
		return "", fmt.Errorf("decode code page %d: %w", codePage, err)
	}
	return string(out), nil
}
