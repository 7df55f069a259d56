package parser

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Decode returns data as NFC-normalized UTF-8 text.
//
// A UTF-8 or UTF-16 byte order mark selects the encoding and is removed.
// Input without a BOM that is not valid UTF-8 is treated as Windows-1252,
// which is what Portuguese banking exports use when they are not UTF-8.
func Decode(data []byte) ([]byte, error) {
	var dec transform.Transformer
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		data = data[3:]
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		dec = unicode.BOMOverride(unicode.UTF8.NewDecoder())
	case !utf8.Valid(data):
		dec = charmap.Windows1252.NewDecoder()
	}

	if dec != nil {
		decoded, _, err := transform.Bytes(dec, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode text: %w", err)
		}
		data = decoded
	}
	return norm.NFC.Bytes(data), nil
}
