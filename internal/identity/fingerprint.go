// Package identity provides human-facing helpers around the local key pair:
// a short fingerprint of the public key for out-of-band comparison, and a
// passphrase-sealed mnemonic backup of the private key.
package identity

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"

	"lumen-chat/go-client/internal/keystore"
)

const fingerprintPrefix = "lum1"

var ErrInvalidPublicKey = errors.New("invalid public key")

// Fingerprint derives a stable, human-comparable identifier from a raw
// public key. Two parties reading the same fingerprint aloud hold the same
// key.
func Fingerprint(publicKey []byte) (string, error) {
	if len(publicKey) != keystore.KeySize {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(publicKey))
	}
	h := blake2b.Sum256(publicKey)
	return fingerprintPrefix + base58.Encode(h[:]), nil
}

// VerifyFingerprint reports whether fingerprint matches publicKey.
func VerifyFingerprint(fingerprint string, publicKey []byte) (bool, error) {
	expected, err := Fingerprint(publicKey)
	if err != nil {
		return false, err
	}
	return fingerprint == expected, nil
}
