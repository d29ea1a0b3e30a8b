// Package remotetext classifies captured bytes for the wire: text when
// the bytes decode cleanly in a known character encoding, raw bytes
// otherwise. Returning text for the common case avoids forcing the
// client through a binary path for ordinary command output.
package remotetext

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding tags understood by the client.
const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin-1"
	EncodingBinary = "binary"
)

// Encoded is a classified byte sequence. Payload is a string for the
// textual encodings and the original []byte for "binary".
type Encoded struct {
	Payload  any
	Encoding string
}

// latin1Hints are the locale hints that select the latin-1 fallback.
var latin1Hints = map[string]bool{
	"latin-1":    true,
	"latin1":     true,
	"iso-8859-1": true,
	"iso8859-1":  true,
	"iso_8859-1": true,
}

// Encode classifies data:
//
//  1. valid UTF-8 as a whole → (string, "utf-8")
//  2. else, when localeHint names a latin-1 family charset → decode each
//     byte through ISO 8859-1 → (string, "latin-1")
//  3. else → (raw bytes, "binary")
//
// The classification is lossless in every branch.
func Encode(data []byte, localeHint string) Encoded {
	if utf8.Valid(data) {
		return Encoded{Payload: string(data), Encoding: EncodingUTF8}
	}

	if latin1Hints[normalizeHint(localeHint)] {
		// ISO 8859-1 maps every byte to the code point of the same
		// value, so the decode cannot fail.
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err == nil {
			return Encoded{Payload: string(decoded), Encoding: EncodingLatin1}
		}
	}

	return Encoded{Payload: data, Encoding: EncodingBinary}
}

func normalizeHint(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	// Locale spellings like "en_US.ISO-8859-1" carry the charset after
	// the dot.
	if i := strings.IndexByte(hint, '.'); i >= 0 {
		hint = hint[i+1:]
	}
	return hint
}
