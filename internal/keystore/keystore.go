// Package keystore owns generation and durable persistence of the local
// identity key pair. One Store is constructed at application start and handed
// to every component that needs keys; persisted state lives in a small
// key-value collaborator under two fixed identifiers.
//
// EnsureInitialized is the only entry point that mutates persisted state.
// Concurrent first-use races across processes are last-write-wins; callers
// that need strict once-only initialization must serialize the call
// themselves.
package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/nacl/box"

	"lumen-chat/go-client/internal/codec"
	"lumen-chat/go-client/internal/storage"
	"lumen-chat/go-client/pkg/models"
)

// Fixed identifiers under which the encoded keys are persisted.
const (
	PublicKeyStorageID  = "chatEncryptionPublicKey"
	PrivateKeyStorageID = "chatEncryptionPrivateKey"
)

// KeySize is the byte length of both halves of the identity key pair.
const KeySize = 32

// ErrKeyNotInitialized reports that a cipher operation was attempted before
// a local key pair exists. Callers recover by calling EnsureInitialized;
// cipher components never initialize on their own.
var ErrKeyNotInitialized = errors.New("local key pair not initialized")

type Store struct {
	mu sync.Mutex
	kv storage.KV

	// In-process cache of the persisted pair. The private half lives in a
	// locked enclave so it stays off swap and out of core dumps.
	pub  []byte
	priv *memguard.Enclave
}

func New(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// Generate produces a fresh X25519 key pair from crypto/rand. It does not
// persist anything.
func (s *Store) Generate() (models.KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return models.KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	return models.KeyPair{
		PublicKey:  append([]byte(nil), pub[:]...),
		PrivateKey: append([]byte(nil), priv[:]...),
	}, nil
}

// Persist writes both keys, base64-encoded, under the fixed identifiers.
// Any previously persisted pair is overwritten.
func (s *Store) Persist(pair models.KeyPair) error {
	if !pair.Complete() {
		return fmt.Errorf("persist: incomplete key pair")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(pair)
}

func (s *Store) persistLocked(pair models.KeyPair) error {
	if err := s.kv.Set(PublicKeyStorageID, codec.Encode(pair.PublicKey)); err != nil {
		return fmt.Errorf("persist public key: %w", err)
	}
	if err := s.kv.Set(PrivateKeyStorageID, codec.Encode(pair.PrivateKey)); err != nil {
		return fmt.Errorf("persist private key: %w", err)
	}
	s.cacheLocked(pair)
	return nil
}

// Load reads both identifiers and reports whether a complete pair exists.
// It does not validate key well-formedness beyond decoding.
func (s *Store) Load() (models.KeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (models.KeyPair, bool, error) {
	pubEnc, pubOK, err := s.kv.Get(PublicKeyStorageID)
	if err != nil {
		return models.KeyPair{}, false, fmt.Errorf("load public key: %w", err)
	}
	privEnc, privOK, err := s.kv.Get(PrivateKeyStorageID)
	if err != nil {
		return models.KeyPair{}, false, fmt.Errorf("load private key: %w", err)
	}
	if !pubOK || !privOK {
		return models.KeyPair{}, false, nil
	}

	pub, err := codec.Decode(pubEnc)
	if err != nil {
		return models.KeyPair{}, false, fmt.Errorf("decode stored public key: %w", err)
	}
	priv, err := codec.Decode(privEnc)
	if err != nil {
		return models.KeyPair{}, false, fmt.Errorf("decode stored private key: %w", err)
	}

	pair := models.KeyPair{PublicKey: pub, PrivateKey: priv}
	s.cacheLocked(pair)
	return pair, true, nil
}

// EnsureInitialized returns the persisted pair if one exists, otherwise
// generates, persists and returns a new one. Idempotent after the first
// successful call: repeated invocations return byte-identical keys.
func (s *Store) EnsureInitialized() (models.KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok, err := s.loadLocked()
	if err != nil {
		return models.KeyPair{}, err
	}
	if ok {
		return pair, nil
	}

	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return models.KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	pair = models.KeyPair{
		PublicKey:  append([]byte(nil), pub[:]...),
		PrivateKey: append([]byte(nil), priv[:]...),
	}
	if err := s.persistLocked(pair); err != nil {
		return models.KeyPair{}, err
	}
	return pair, nil
}

// Current returns the persisted pair, or ErrKeyNotInitialized if none
// exists. It never generates keys; cipher components call this.
func (s *Store) Current() (models.KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.priv != nil {
		buf, err := s.priv.Open()
		if err != nil {
			return models.KeyPair{}, fmt.Errorf("open key enclave: %w", err)
		}
		defer buf.Destroy()
		return models.KeyPair{
			PublicKey:  append([]byte(nil), s.pub...),
			PrivateKey: append([]byte(nil), buf.Bytes()...),
		}, nil
	}

	pair, ok, err := s.loadLocked()
	if err != nil {
		return models.KeyPair{}, err
	}
	if !ok {
		return models.KeyPair{}, ErrKeyNotInitialized
	}
	return pair, nil
}

// cacheLocked replaces the in-process copy of the pair. NewEnclave wipes the
// buffer it is handed, so the private key goes in as a throwaway copy.
func (s *Store) cacheLocked(pair models.KeyPair) {
	s.pub = append([]byte(nil), pair.PublicKey...)
	s.priv = memguard.NewEnclave(append([]byte(nil), pair.PrivateKey...))
}
