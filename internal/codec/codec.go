// Package codec provides the canonical byte/string transforms shared by the
// key store and cipher components: UTF-8 text to bytes and bytes to base64.
// Both directions round-trip exactly; malformed base64 is rejected rather
// than partially decoded.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var ErrMalformedEncoding = errors.New("malformed base64 input")

// TextToBytes converts text to its UTF-8 byte sequence.
func TextToBytes(s string) []byte {
	return []byte(s)
}

// BytesToText converts a UTF-8 byte sequence back to text.
func BytesToText(b []byte) string {
	return string(b)
}

// Encode renders bytes as standard base64 with padding, safe for JSON
// payloads and text columns.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode reverses Encode. Input that is not valid base64 fails with
// ErrMalformedEncoding and yields no bytes.
func Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	return b, nil
}
