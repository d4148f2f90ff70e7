package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"lumen-chat/go-client/internal/keystore"
	"lumen-chat/go-client/internal/platform/ratelimiter"
	"lumen-chat/go-client/pkg/models"
)

const (
	backupEnvelopeVersion = 1
	backupSaltSize        = 16
	defaultArgonTime      = uint32(2)
	defaultArgonMemKB     = uint32(64 * 1024)
	defaultArgonThreads   = uint8(1)
)

var (
	ErrInvalidMnemonic    = errors.New("invalid mnemonic")
	ErrInvalidPassphrase  = errors.New("invalid passphrase")
	ErrPassphraseRequired = errors.New("passphrase is required")
	ErrAttemptsThrottled  = errors.New("passphrase attempts are temporarily throttled")
	ErrInvalidEnvelope    = errors.New("backup envelope is invalid")
)

// BackupEnvelope carries the identity private key, encoded as a bip39
// mnemonic and sealed under a passphrase-derived key. The KDF parameters
// travel with the envelope so sealed backups survive parameter changes.
type BackupEnvelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// MnemonicFromPrivateKey encodes the 32-byte private key as a 24-word
// mnemonic for offline transcription.
func MnemonicFromPrivateKey(privateKey []byte) (string, error) {
	if len(privateKey) != keystore.KeySize {
		return "", fmt.Errorf("private key has %d bytes, want %d", len(privateKey), keystore.KeySize)
	}
	mnemonic, err := bip39.NewMnemonic(append([]byte(nil), privateKey...))
	if err != nil {
		return "", fmt.Errorf("encode mnemonic: %w", err)
	}
	return mnemonic, nil
}

// KeyPairFromMnemonic reverses MnemonicFromPrivateKey, rederiving the
// public half from the recovered private key.
func KeyPairFromMnemonic(mnemonic string) (models.KeyPair, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return models.KeyPair{}, ErrInvalidMnemonic
	}
	priv, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return models.KeyPair{}, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	if len(priv) != keystore.KeySize {
		return models.KeyPair{}, fmt.Errorf("%w: %d bytes of entropy", ErrInvalidMnemonic, len(priv))
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return models.KeyPair{}, fmt.Errorf("derive public key: %w", err)
	}
	return models.KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// BackupManager seals and restores key-pair backups. Failed passphrase
// attempts are throttled per envelope and backed off exponentially, so an
// attacker with a stolen envelope cannot grind passphrases through this
// process.
type BackupManager struct {
	mu             sync.Mutex
	limiter        *ratelimiter.AttemptLimiter
	failedAttempts int
	lockedUntil    time.Time
	now            func() time.Time
}

func NewBackupManager() *BackupManager {
	return &BackupManager{
		limiter: ratelimiter.New(1, 3, 30*time.Minute),
		now:     time.Now,
	}
}

func newBackupManagerWithClock(now func() time.Time) *BackupManager {
	return &BackupManager{
		limiter: ratelimiter.New(1, 3, 30*time.Minute),
		now:     now,
	}
}

// Export seals pair's private key under passphrase.
func (m *BackupManager) Export(pair models.KeyPair, passphrase string) (*BackupEnvelope, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrPassphraseRequired
	}
	mnemonic, err := MnemonicFromPrivateKey(pair.PrivateKey)
	if err != nil {
		return nil, err
	}
	return sealBackup([]byte(mnemonic), []byte(passphrase))
}

// Restore opens env and returns the reconstructed key pair. Wrong
// passphrases fail with ErrInvalidPassphrase; repeated failures throttle
// further attempts with ErrAttemptsThrottled.
func (m *BackupManager) Restore(env *BackupEnvelope, passphrase string) (models.KeyPair, error) {
	if strings.TrimSpace(passphrase) == "" {
		return models.KeyPair{}, ErrPassphraseRequired
	}
	if env == nil {
		return models.KeyPair{}, ErrInvalidEnvelope
	}

	m.mu.Lock()
	now := m.now()
	if !m.lockedUntil.IsZero() && now.Before(m.lockedUntil) {
		m.mu.Unlock()
		return models.KeyPair{}, ErrAttemptsThrottled
	}
	if !m.limiter.Allow(envelopeAttemptKey(env), now) {
		m.mu.Unlock()
		return models.KeyPair{}, ErrAttemptsThrottled
	}
	m.mu.Unlock()

	mnemonic, err := openBackup(env, []byte(passphrase))
	if err != nil {
		m.mu.Lock()
		m.failedAttempts++
		m.lockedUntil = m.now().Add(failedAttemptBackoff(m.failedAttempts))
		m.mu.Unlock()
		if errors.Is(err, ErrInvalidEnvelope) {
			return models.KeyPair{}, err
		}
		return models.KeyPair{}, ErrInvalidPassphrase
	}

	m.mu.Lock()
	m.failedAttempts = 0
	m.lockedUntil = time.Time{}
	m.mu.Unlock()

	return KeyPairFromMnemonic(string(mnemonic))
}

func sealBackup(plaintext, passphrase []byte) (*BackupEnvelope, error) {
	salt := make([]byte, backupSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := argon2.IDKey(passphrase, salt, defaultArgonTime, defaultArgonMemKB, defaultArgonThreads, chacha20poly1305.KeySize)
	defer memguard.WipeBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	return &BackupEnvelope{
		Version:     backupEnvelopeVersion,
		KDF:         "argon2id",
		KDFTime:     defaultArgonTime,
		KDFMemoryKB: defaultArgonMemKB,
		KDFThreads:  defaultArgonThreads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  ciphertext,
	}, nil
}

func openBackup(env *BackupEnvelope, passphrase []byte) ([]byte, error) {
	if env.Version != backupEnvelopeVersion || env.KDF != "argon2id" {
		return nil, ErrInvalidEnvelope
	}
	// Refuse weakened parameters: an attacker who can rewrite the envelope
	// must not be able to cheapen the KDF.
	if env.KDFTime < defaultArgonTime || env.KDFMemoryKB < defaultArgonMemKB {
		return nil, ErrInvalidEnvelope
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrInvalidEnvelope
	}
	key := argon2.IDKey(passphrase, env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads, chacha20poly1305.KeySize)
	defer memguard.WipeBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	return plaintext, nil
}

// envelopeAttemptKey buckets throttling per envelope using its salt, which
// is unique per Export.
func envelopeAttemptKey(env *BackupEnvelope) string {
	return fmt.Sprintf("%x", env.Salt)
}

func failedAttemptBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// 1s, 2s, 4s... up to 32s max.
	shift := attempt - 1
	if shift > 5 {
		shift = 5
	}
	return time.Second * time.Duration(1<<shift)
}
