package models

// KeyPair is the local identity's long-lived X25519 key pair. The private key
// never leaves the local machine; it is persisted by the key store and used
// for both peer and at-rest cryptography.
type KeyPair struct {
	PublicKey  []byte `json:"public_key"`
	PrivateKey []byte `json:"private_key"`
}

// Clone returns a deep copy so callers cannot alias stored key material.
func (p KeyPair) Clone() KeyPair {
	return KeyPair{
		PublicKey:  append([]byte(nil), p.PublicKey...),
		PrivateKey: append([]byte(nil), p.PrivateKey...),
	}
}

// Complete reports whether both halves of the pair are present.
func (p KeyPair) Complete() bool {
	return len(p.PublicKey) > 0 && len(p.PrivateKey) > 0
}

// Envelope is the transmittable result of one peer encryption call. Both
// fields are base64 strings so the envelope can travel inside JSON payloads
// or database text columns. An envelope is opaque without the matching keys.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

// SealedRecord is the at-rest analogue of an Envelope, produced by sealing
// local plaintext under the identity's derived symmetric key.
type SealedRecord struct {
	EncryptedData string `json:"encrypted_data"`
	Nonce         string `json:"nonce"`
}
