package ca

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// cnEncodingPrefix tags a base64-wrapped common name. Some downstream X.509
// consumers mishandle non-ASCII DN fields, so any common name containing
// non-ASCII runes is stored as this prefix plus standard base64 of the
// original UTF-8 bytes. The transform is total and invertible.
const cnEncodingPrefix = "B64_"

// EncodeCommonName returns an ASCII-safe form of name. Pure ASCII input
// passes through unchanged, unless it happens to start with the encoding
// prefix, which must also be wrapped so DecodeCommonName stays exact.
func EncodeCommonName(name string) string {
	if isASCII(name) && !strings.HasPrefix(name, cnEncodingPrefix) {
		return name
	}
	return cnEncodingPrefix + base64.StdEncoding.EncodeToString([]byte(name))
}

// DecodeCommonName reverses EncodeCommonName exactly.
func DecodeCommonName(encoded string) string {
	if !strings.HasPrefix(encoded, cnEncodingPrefix) {
		return encoded
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded[len(cnEncodingPrefix):])
	if err != nil || !utf8.Valid(decoded) {
		// Not one of ours; EncodeCommonName never emits the bare prefix.
		return encoded
	}
	return string(decoded)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}
