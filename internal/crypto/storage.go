package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"lumen-chat/go-client/internal/codec"
	"lumen-chat/go-client/internal/keystore"
	"lumen-chat/go-client/internal/platform/metrics"
	"lumen-chat/go-client/pkg/models"
)

const hkdfStorageKeyInfo = "lumen/storage-key/v1"

// StorageCipher seals data the local identity persists for itself, keyed by
// a symmetric key derived from the identity private key. The derived key is
// stable for the life of the key pair, so replacing the pair permanently
// orphans every previously sealed record.
type StorageCipher struct {
	keys    *keystore.Store
	metrics *metrics.CipherMetrics

	// hardenedKDF switches key derivation from raw truncation of the
	// private key to HKDF-SHA-256. The two modes produce different keys, so
	// flipping the flag orphans records sealed under the other mode. Raw
	// truncation stays the default for compatibility with existing records.
	hardenedKDF bool
}

// StorageOption configures a StorageCipher.
type StorageOption func(*StorageCipher)

// WithHKDFStorageKey derives the symmetric key through HKDF-SHA-256 instead
// of truncating raw private-key material. Not compatible with records sealed
// under the default derivation.
func WithHKDFStorageKey() StorageOption {
	return func(c *StorageCipher) {
		c.hardenedKDF = true
	}
}

func NewStorageCipher(keys *keystore.Store, opts ...StorageOption) *StorageCipher {
	c := &StorageCipher{keys: keys, metrics: metrics.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// storageKey derives the 32-byte secretbox key from the private key.
// Deriving twice always yields the same key for the same pair.
func (c *StorageCipher) storageKey() (*[32]byte, error) {
	pair, err := c.keys.Current()
	if err != nil {
		return nil, err
	}
	if len(pair.PrivateKey) < 32 {
		return nil, fmt.Errorf("stored private key has %d bytes, want at least 32", len(pair.PrivateKey))
	}

	var key [32]byte
	if c.hardenedKDF {
		reader := hkdf.New(sha256.New, pair.PrivateKey, nil, []byte(hkdfStorageKeyInfo))
		if _, err := io.ReadFull(reader, key[:]); err != nil {
			return nil, fmt.Errorf("derive storage key: %w", err)
		}
		return &key, nil
	}
	copy(key[:], pair.PrivateKey[:32])
	return &key, nil
}

// SealForStorage encrypts local plaintext under the derived symmetric key
// with a fresh random nonce.
func (c *StorageCipher) SealForStorage(plaintext string) (models.SealedRecord, error) {
	rec, err := c.sealForStorage(plaintext)
	c.metrics.Observe("storage_seal", err)
	return rec, err
}

func (c *StorageCipher) sealForStorage(plaintext string) (models.SealedRecord, error) {
	key, err := c.storageKey()
	if err != nil {
		return models.SealedRecord{}, err
	}
	nonce, err := newNonce()
	if err != nil {
		return models.SealedRecord{}, err
	}

	sealed := secretbox.Seal(nil, codec.TextToBytes(plaintext), nonce, key)
	return models.SealedRecord{
		EncryptedData: codec.Encode(sealed),
		Nonce:         codec.Encode(nonce[:]),
	}, nil
}

// OpenFromStorage reverses SealForStorage. Authentication failure returns
// ErrDecryptionFailed with no partial output.
func (c *StorageCipher) OpenFromStorage(encryptedData, nonce string) (string, error) {
	plaintext, err := c.openFromStorage(encryptedData, nonce)
	c.metrics.Observe("storage_open", err)
	return plaintext, err
}

func (c *StorageCipher) openFromStorage(encryptedData, nonce string) (string, error) {
	key, err := c.storageKey()
	if err != nil {
		return "", err
	}
	nonceBytes, err := decodeNonce(nonce)
	if err != nil {
		return "", err
	}
	sealed, err := codec.Decode(encryptedData)
	if err != nil {
		return "", err
	}

	plaintext, ok := secretbox.Open(nil, sealed, nonceBytes, key)
	if !ok {
		return "", ErrDecryptionFailed
	}
	return codec.BytesToText(plaintext), nil
}
