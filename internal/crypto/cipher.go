// Package crypto implements the two cipher components of the encryption
// core: authenticated public-key encryption between peers (PeerCipher) and
// symmetric at-rest sealing for the local identity's own data
// (StorageCipher).
//
// Both are stateless beyond the injected key store; every operation draws a
// fresh random nonce and fails all-or-nothing on any integrity violation.
// Failure results carry no detail beyond the sentinel error, so callers
// cannot build a decryption oracle out of error messages.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"lumen-chat/go-client/internal/codec"
	"lumen-chat/go-client/internal/keystore"
)

// NonceSize is the byte length of the random nonce drawn per operation.
const NonceSize = 24

var (
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidPeerKey   = errors.New("invalid peer key")
)

func newNonce() (*[NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("draw nonce: %w", err)
	}
	return &nonce, nil
}

// decodePeerKey decodes a base64 peer public key and checks its length.
func decodePeerKey(encoded string) (*[keystore.KeySize]byte, error) {
	raw, err := codec.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) != keystore.KeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPeerKey, len(raw))
	}
	var key [keystore.KeySize]byte
	copy(key[:], raw)
	return &key, nil
}

// decodeNonce decodes a base64 nonce. A decoded value of the wrong length
// cannot authenticate, so it is reported as a decryption failure rather
// than leaking which field was off.
func decodeNonce(encoded string) (*[NonceSize]byte, error) {
	raw, err := codec.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) != NonceSize {
		return nil, ErrDecryptionFailed
	}
	var nonce [NonceSize]byte
	copy(nonce[:], raw)
	return &nonce, nil
}

func privateKeyArray(priv []byte) (*[keystore.KeySize]byte, error) {
	if len(priv) != keystore.KeySize {
		return nil, fmt.Errorf("stored private key has %d bytes, want %d", len(priv), keystore.KeySize)
	}
	var key [keystore.KeySize]byte
	copy(key[:], priv)
	return &key, nil
}
