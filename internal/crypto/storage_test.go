package crypto

import (
	"errors"
	"testing"

	"lumen-chat/go-client/internal/codec"
	"lumen-chat/go-client/internal/keystore"
	"lumen-chat/go-client/internal/storage"
)

func newInitializedStore(t *testing.T) *keystore.Store {
	t.Helper()
	s := keystore.New(storage.NewMemStore())
	if _, err := s.EnsureInitialized(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return s
}

func TestStorageRoundtrip(t *testing.T) {
	c := NewStorageCipher(newInitializedStore(t))

	for _, plaintext := range []string{"cached message", "", "ünïcødé ✓"} {
		rec, err := c.SealForStorage(plaintext)
		if err != nil {
			t.Fatalf("seal failed: %v", err)
		}
		got, err := c.OpenFromStorage(rec.EncryptedData, rec.Nonce)
		if err != nil {
			t.Fatalf("open failed: %v", err)
		}
		if got != plaintext {
			t.Fatalf("roundtrip mismatch: got %q want %q", got, plaintext)
		}
	}
}

func TestStorageKeyIsStableAcrossCipherInstances(t *testing.T) {
	keys := newInitializedStore(t)

	rec, err := NewStorageCipher(keys).SealForStorage("sealed earlier")
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	got, err := NewStorageCipher(keys).OpenFromStorage(rec.EncryptedData, rec.Nonce)
	if err != nil {
		t.Fatalf("open with fresh cipher failed: %v", err)
	}
	if got != "sealed earlier" {
		t.Fatalf("unexpected plaintext: %q", got)
	}
}

func TestStorageTamperDetection(t *testing.T) {
	c := NewStorageCipher(newInitializedStore(t))

	rec, err := c.SealForStorage("local cache entry")
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := c.OpenFromStorage(flipBit(t, rec.EncryptedData), rec.Nonce); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("tampered data: expected ErrDecryptionFailed, got %v", err)
	}
	if _, err := c.OpenFromStorage(rec.EncryptedData, flipBit(t, rec.Nonce)); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("tampered nonce: expected ErrDecryptionFailed, got %v", err)
	}
}

func TestStorageRequiresInitializedKeys(t *testing.T) {
	c := NewStorageCipher(keystore.New(storage.NewMemStore()))

	if _, err := c.SealForStorage("nope"); !errors.Is(err, keystore.ErrKeyNotInitialized) {
		t.Fatalf("seal: expected ErrKeyNotInitialized, got %v", err)
	}
	if _, err := c.OpenFromStorage("aGk=", "aGk="); !errors.Is(err, keystore.ErrKeyNotInitialized) {
		t.Fatalf("open: expected ErrKeyNotInitialized, got %v", err)
	}
}

func TestStorageNonceUniqueness(t *testing.T) {
	c := NewStorageCipher(newInitializedStore(t))

	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		rec, err := c.SealForStorage("same plaintext")
		if err != nil {
			t.Fatalf("seal failed: %v", err)
		}
		if _, dup := seen[rec.Nonce]; dup {
			t.Fatal("nonce repeated across seal calls")
		}
		seen[rec.Nonce] = struct{}{}
	}
}

func TestStorageRecordsTiedToKeyPair(t *testing.T) {
	keys := newInitializedStore(t)
	c := NewStorageCipher(keys)

	rec, err := c.SealForStorage("sealed under first pair")
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	// Regenerating the identity orphans previously sealed records.
	replacement, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if err := keys.Persist(replacement); err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	if _, err := c.OpenFromStorage(rec.EncryptedData, rec.Nonce); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed after key replacement, got %v", err)
	}
}

func TestStorageHKDFVariantIncompatibleWithDefault(t *testing.T) {
	keys := newInitializedStore(t)

	plain := NewStorageCipher(keys)
	hardened := NewStorageCipher(keys, WithHKDFStorageKey())

	rec, err := plain.SealForStorage("sealed with truncated key")
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := hardened.OpenFromStorage(rec.EncryptedData, rec.Nonce); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed across derivation modes, got %v", err)
	}

	// The hardened mode still round-trips with itself.
	rec, err = hardened.SealForStorage("sealed with hkdf key")
	if err != nil {
		t.Fatalf("hardened seal failed: %v", err)
	}
	got, err := hardened.OpenFromStorage(rec.EncryptedData, rec.Nonce)
	if err != nil || got != "sealed with hkdf key" {
		t.Fatalf("hardened roundtrip failed: %q %v", got, err)
	}
}

func TestStorageRejectsMalformedInputs(t *testing.T) {
	c := NewStorageCipher(newInitializedStore(t))

	nonce := codec.Encode(make([]byte, NonceSize))
	if _, err := c.OpenFromStorage("@@@", nonce); !errors.Is(err, codec.ErrMalformedEncoding) {
		t.Fatalf("malformed data: expected ErrMalformedEncoding, got %v", err)
	}
	if _, err := c.OpenFromStorage("aGk=", "@@@"); !errors.Is(err, codec.ErrMalformedEncoding) {
		t.Fatalf("malformed nonce: expected ErrMalformedEncoding, got %v", err)
	}
}
