package crypto

import (
	"golang.org/x/crypto/nacl/box"

	"lumen-chat/go-client/internal/codec"
	"lumen-chat/go-client/internal/keystore"
	"lumen-chat/go-client/internal/platform/metrics"
	"lumen-chat/go-client/pkg/models"
)

// PeerCipher performs authenticated encryption between the local identity
// and one peer using NaCl box (X25519 + XSalsa20-Poly1305). The primitive is
// mutual: the same envelope opens with either party's private key and the
// other's public key.
type PeerCipher struct {
	keys    *keystore.Store
	metrics *metrics.CipherMetrics
}

func NewPeerCipher(keys *keystore.Store) *PeerCipher {
	return &PeerCipher{keys: keys, metrics: metrics.Default()}
}

// EncryptForPeer encrypts plaintext for the holder of receiverPublicKey.
// It requires an initialized local key pair and never creates one; callers
// see keystore.ErrKeyNotInitialized until EnsureInitialized has run.
func (c *PeerCipher) EncryptForPeer(plaintext, receiverPublicKey string) (models.Envelope, error) {
	env, err := c.encryptForPeer(plaintext, receiverPublicKey)
	c.metrics.Observe("peer_encrypt", err)
	return env, err
}

func (c *PeerCipher) encryptForPeer(plaintext, receiverPublicKey string) (models.Envelope, error) {
	pair, err := c.keys.Current()
	if err != nil {
		return models.Envelope{}, err
	}
	priv, err := privateKeyArray(pair.PrivateKey)
	if err != nil {
		return models.Envelope{}, err
	}
	peer, err := decodePeerKey(receiverPublicKey)
	if err != nil {
		return models.Envelope{}, err
	}
	nonce, err := newNonce()
	if err != nil {
		return models.Envelope{}, err
	}

	ciphertext := box.Seal(nil, codec.TextToBytes(plaintext), nonce, peer, priv)
	return models.Envelope{
		Ciphertext: codec.Encode(ciphertext),
		Nonce:      codec.Encode(nonce[:]),
	}, nil
}

// DecryptFromPeer opens an envelope produced by the holder of
// senderPublicKey. Any integrity violation (tampered ciphertext or nonce,
// wrong key, truncated input) fails with ErrDecryptionFailed and yields no
// partial plaintext.
func (c *PeerCipher) DecryptFromPeer(ciphertext, nonce, senderPublicKey string) (string, error) {
	plaintext, err := c.decryptFromPeer(ciphertext, nonce, senderPublicKey)
	c.metrics.Observe("peer_decrypt", err)
	return plaintext, err
}

func (c *PeerCipher) decryptFromPeer(ciphertext, nonce, senderPublicKey string) (string, error) {
	pair, err := c.keys.Current()
	if err != nil {
		return "", err
	}
	priv, err := privateKeyArray(pair.PrivateKey)
	if err != nil {
		return "", err
	}
	peer, err := decodePeerKey(senderPublicKey)
	if err != nil {
		return "", err
	}
	nonceBytes, err := decodeNonce(nonce)
	if err != nil {
		return "", err
	}
	ciphertextBytes, err := codec.Decode(ciphertext)
	if err != nil {
		return "", err
	}

	plaintext, ok := box.Open(nil, ciphertextBytes, nonceBytes, peer, priv)
	if !ok {
		return "", ErrDecryptionFailed
	}
	return codec.BytesToText(plaintext), nil
}
