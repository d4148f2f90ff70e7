package identity

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"lumen-chat/go-client/internal/keystore"
	"lumen-chat/go-client/internal/storage"
	"lumen-chat/go-client/pkg/models"
)

func newPair(t *testing.T) models.KeyPair {
	t.Helper()
	pair, err := keystore.New(storage.NewMemStore()).EnsureInitialized()
	if err != nil {
		t.Fatalf("init pair failed: %v", err)
	}
	return pair
}

func TestFingerprintStableAndPrefixed(t *testing.T) {
	pair := newPair(t)

	first, err := Fingerprint(pair.PublicKey)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	second, err := Fingerprint(pair.PublicKey)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	if first != second {
		t.Fatal("fingerprint not stable for identical key")
	}
	if !strings.HasPrefix(first, "lum1") {
		t.Fatalf("unexpected fingerprint format: %q", first)
	}

	ok, err := VerifyFingerprint(first, pair.PublicKey)
	if err != nil || !ok {
		t.Fatalf("verify failed: %v %v", ok, err)
	}
	ok, err = VerifyFingerprint(first, newPair(t).PublicKey)
	if err != nil || ok {
		t.Fatalf("fingerprint matched a different key: %v %v", ok, err)
	}
}

func TestFingerprintRejectsBadKeySize(t *testing.T) {
	if _, err := Fingerprint([]byte("short")); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
}

func TestMnemonicRoundtrip(t *testing.T) {
	pair := newPair(t)

	mnemonic, err := MnemonicFromPrivateKey(pair.PrivateKey)
	if err != nil {
		t.Fatalf("mnemonic encode failed: %v", err)
	}
	if words := strings.Fields(mnemonic); len(words) != 24 {
		t.Fatalf("expected 24 words, got %d", len(words))
	}

	restored, err := KeyPairFromMnemonic(mnemonic)
	if err != nil {
		t.Fatalf("mnemonic decode failed: %v", err)
	}
	if !bytes.Equal(restored.PrivateKey, pair.PrivateKey) {
		t.Fatal("restored private key differs")
	}
	if !bytes.Equal(restored.PublicKey, pair.PublicKey) {
		t.Fatal("rederived public key differs")
	}
}

func TestKeyPairFromMnemonicRejectsGarbage(t *testing.T) {
	if _, err := KeyPairFromMnemonic("correct horse battery staple"); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
}

func TestBackupExportRestoreRoundtrip(t *testing.T) {
	pair := newPair(t)
	m := NewBackupManager()

	env, err := m.Export(pair, "s3cret passphrase")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	restored, err := m.Restore(env, "s3cret passphrase")
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if !bytes.Equal(restored.PrivateKey, pair.PrivateKey) || !bytes.Equal(restored.PublicKey, pair.PublicKey) {
		t.Fatal("restored pair differs from exported pair")
	}
}

func TestBackupRequiresPassphrase(t *testing.T) {
	m := NewBackupManager()
	if _, err := m.Export(newPair(t), "  "); !errors.Is(err, ErrPassphraseRequired) {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}
	if _, err := m.Restore(&BackupEnvelope{}, ""); !errors.Is(err, ErrPassphraseRequired) {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}
}

func TestBackupWrongPassphraseThenThrottle(t *testing.T) {
	pair := newPair(t)
	clock := time.Unix(1_700_000_000, 0)
	m := newBackupManagerWithClock(func() time.Time { return clock })

	env, err := m.Export(pair, "right")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if _, err := m.Restore(env, "wrong"); !errors.Is(err, ErrInvalidPassphrase) {
		t.Fatalf("expected ErrInvalidPassphrase, got %v", err)
	}
	// Within the backoff window even the right passphrase is throttled.
	if _, err := m.Restore(env, "right"); !errors.Is(err, ErrAttemptsThrottled) {
		t.Fatalf("expected ErrAttemptsThrottled, got %v", err)
	}

	clock = clock.Add(time.Minute)
	restored, err := m.Restore(env, "right")
	if err != nil {
		t.Fatalf("restore after backoff failed: %v", err)
	}
	if !bytes.Equal(restored.PrivateKey, pair.PrivateKey) {
		t.Fatal("restored pair differs after throttle window")
	}
}

func TestBackupRejectsKDFDowngrade(t *testing.T) {
	m := NewBackupManager()
	env, err := m.Export(newPair(t), "pass")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	downgraded := *env
	downgraded.KDFMemoryKB = 8 * 1024
	if _, err := m.Restore(&downgraded, "pass"); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
}

func TestBackupRejectsTamperedCiphertext(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	m := newBackupManagerWithClock(func() time.Time { return clock })
	env, err := m.Export(newPair(t), "pass")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	env.Ciphertext[len(env.Ciphertext)/2] ^= 0x01
	if _, err := m.Restore(env, "pass"); !errors.Is(err, ErrInvalidPassphrase) {
		t.Fatalf("expected ErrInvalidPassphrase for tampered backup, got %v", err)
	}
}
