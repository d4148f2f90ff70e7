// chatkeys manages the local chat encryption identity: key initialization,
// peer message encryption/decryption, at-rest sealing, and passphrase
// backups. Every command prints a JSON document on stdout so the desktop
// shell can drive it.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"lumen-chat/go-client/internal/codec"
	"lumen-chat/go-client/internal/config"
	crypt "lumen-chat/go-client/internal/crypto"
	"lumen-chat/go-client/internal/identity"
	"lumen-chat/go-client/internal/keystore"
	"lumen-chat/go-client/internal/platform/privacylog"
	"lumen-chat/go-client/internal/storage"
)

const (
	exitOK           = 0
	exitInvalidInput = 10
	exitCryptoFailed = 20
	exitStorageError = 30
)

var logger = slog.New(privacylog.WrapHandler(slog.NewTextHandler(os.Stderr, nil)))

func main() {
	// Local .env files override nothing that is already exported.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidInput)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "fingerprint":
		runFingerprint(os.Args[2:])
	case "encrypt":
		runEncrypt(os.Args[2:])
	case "decrypt":
		runDecrypt(os.Args[2:])
	case "seal":
		runSeal(os.Args[2:])
	case "open":
		runOpen(os.Args[2:])
	case "backup":
		runBackup(os.Args[2:])
	case "restore":
		runRestore(os.Args[2:])
	default:
		printUsage()
		os.Exit(exitInvalidInput)
	}
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	parseFlags(fs, args)

	ks, _, existedBefore := openKeyStore(*configPath)
	pair, err := ks.EnsureInitialized()
	if err != nil {
		fail(err, exitStorageError)
	}
	fp, err := identity.Fingerprint(pair.PublicKey)
	if err != nil {
		fail(err, exitCryptoFailed)
	}

	logger.Info("key pair ready", "created", !existedBefore, "public_key", codec.Encode(pair.PublicKey))
	printJSON(map[string]any{
		"created":     !existedBefore,
		"public_key":  codec.Encode(pair.PublicKey),
		"fingerprint": fp,
	})
}

func runFingerprint(args []string) {
	fs := flag.NewFlagSet("fingerprint", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	peerKey := fs.String("key", "", "base64 public key (defaults to the local key)")
	parseFlags(fs, args)

	var raw []byte
	if strings.TrimSpace(*peerKey) != "" {
		decoded, err := codec.Decode(*peerKey)
		if err != nil {
			fail(err, exitInvalidInput)
		}
		raw = decoded
	} else {
		ks, _, _ := openKeyStore(*configPath)
		pair, err := ks.Current()
		if err != nil {
			fail(err, exitStorageError)
		}
		raw = pair.PublicKey
	}

	fp, err := identity.Fingerprint(raw)
	if err != nil {
		fail(err, exitInvalidInput)
	}
	printJSON(map[string]any{"fingerprint": fp})
}

func runEncrypt(args []string) {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	peerKey := fs.String("peer", "", "base64 public key of the receiver")
	message := fs.String("message", "", "plaintext message")
	parseFlags(fs, args)
	if strings.TrimSpace(*peerKey) == "" {
		failUsage("peer public key is required")
	}

	ks, _, _ := openKeyStore(*configPath)
	env, err := crypt.NewPeerCipher(ks).EncryptForPeer(*message, *peerKey)
	if err != nil {
		fail(err, cryptoExitCode(err))
	}
	printJSON(env)
}

func runDecrypt(args []string) {
	fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	peerKey := fs.String("peer", "", "base64 public key of the sender")
	ciphertext := fs.String("ciphertext", "", "base64 ciphertext")
	nonce := fs.String("nonce", "", "base64 nonce")
	parseFlags(fs, args)
	if strings.TrimSpace(*peerKey) == "" || strings.TrimSpace(*ciphertext) == "" || strings.TrimSpace(*nonce) == "" {
		failUsage("peer, ciphertext and nonce are required")
	}

	ks, _, _ := openKeyStore(*configPath)
	plaintext, err := crypt.NewPeerCipher(ks).DecryptFromPeer(*ciphertext, *nonce, *peerKey)
	if err != nil {
		fail(err, cryptoExitCode(err))
	}
	printJSON(map[string]any{"message": plaintext})
}

func runSeal(args []string) {
	fs := flag.NewFlagSet("seal", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	message := fs.String("message", "", "plaintext to seal")
	parseFlags(fs, args)

	ks, cfg, _ := openKeyStore(*configPath)
	rec, err := storageCipher(ks, cfg).SealForStorage(*message)
	if err != nil {
		fail(err, cryptoExitCode(err))
	}
	printJSON(rec)
}

func runOpen(args []string) {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	data := fs.String("data", "", "base64 sealed data")
	nonce := fs.String("nonce", "", "base64 nonce")
	parseFlags(fs, args)
	if strings.TrimSpace(*data) == "" || strings.TrimSpace(*nonce) == "" {
		failUsage("data and nonce are required")
	}

	ks, cfg, _ := openKeyStore(*configPath)
	plaintext, err := storageCipher(ks, cfg).OpenFromStorage(*data, *nonce)
	if err != nil {
		fail(err, cryptoExitCode(err))
	}
	printJSON(map[string]any{"message": plaintext})
}

func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	passphrase := fs.String("passphrase", os.Getenv("LUMEN_BACKUP_PASSPHRASE"), "backup passphrase")
	outPath := fs.String("out", "", "write the sealed backup to this file instead of stdout")
	parseFlags(fs, args)

	ks, _, _ := openKeyStore(*configPath)
	pair, err := ks.Current()
	if err != nil {
		fail(err, exitStorageError)
	}
	env, err := identity.NewBackupManager().Export(pair, *passphrase)
	if err != nil {
		fail(err, exitInvalidInput)
	}

	if strings.TrimSpace(*outPath) != "" {
		payload, err := json.Marshal(env)
		if err != nil {
			fail(err, exitCryptoFailed)
		}
		if err := os.WriteFile(*outPath, payload, 0o600); err != nil {
			fail(err, exitStorageError)
		}
		printJSON(map[string]any{"written": *outPath})
		return
	}
	printJSON(env)
}

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	passphrase := fs.String("passphrase", os.Getenv("LUMEN_BACKUP_PASSPHRASE"), "backup passphrase")
	inPath := fs.String("in", "", "file containing the sealed backup")
	parseFlags(fs, args)
	if strings.TrimSpace(*inPath) == "" {
		failUsage("backup file is required")
	}

	raw, err := os.ReadFile(*inPath)
	if err != nil {
		fail(err, exitStorageError)
	}
	var env identity.BackupEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		fail(err, exitInvalidInput)
	}

	pair, err := identity.NewBackupManager().Restore(&env, *passphrase)
	if err != nil {
		fail(err, exitCryptoFailed)
	}

	ks, _, _ := openKeyStore(*configPath)
	if err := ks.Persist(pair); err != nil {
		fail(err, exitStorageError)
	}
	fp, err := identity.Fingerprint(pair.PublicKey)
	if err != nil {
		fail(err, exitCryptoFailed)
	}
	logger.Info("identity restored from backup", "public_key", codec.Encode(pair.PublicKey))
	printJSON(map[string]any{
		"restored":    true,
		"public_key":  codec.Encode(pair.PublicKey),
		"fingerprint": fp,
	})
}

func openKeyStore(configPath string) (*keystore.Store, config.Config, bool) {
	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		fail(err, exitInvalidInput)
	}
	kv, err := storage.OpenFileStore(cfg.KeyStorePath())
	if err != nil {
		fail(err, exitStorageError)
	}
	ks := keystore.New(kv)
	_, existed, err := ks.Load()
	if err != nil {
		fail(err, exitStorageError)
	}
	return ks, cfg, existed
}

func storageCipher(ks *keystore.Store, cfg config.Config) *crypt.StorageCipher {
	if cfg.StorageKeyDerivation == config.DerivationHKDF {
		return crypt.NewStorageCipher(ks, crypt.WithHKDFStorageKey())
	}
	return crypt.NewStorageCipher(ks)
}

func cryptoExitCode(err error) int {
	if errors.Is(err, keystore.ErrKeyNotInitialized) {
		return exitInvalidInput
	}
	return exitCryptoFailed
}

func parseFlags(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fail(err, exitInvalidInput)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail(err, exitCryptoFailed)
	}
	os.Exit(exitOK)
}

func failUsage(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(exitInvalidInput)
}

func fail(err error, code int) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(code)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: chatkeys <command> [flags]

commands:
  init         generate the local key pair if none exists
  fingerprint  print the fingerprint of the local or a given public key
  encrypt      encrypt a message for a peer public key
  decrypt      decrypt a peer envelope
  seal         seal local plaintext for at-rest storage
  open         open a sealed record
  backup       export a passphrase-sealed key backup
  restore      restore the key pair from a sealed backup`)
}
