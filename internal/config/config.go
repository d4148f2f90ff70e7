// Package config loads the client configuration from YAML with environment
// overrides. Missing files fall back to defaults; a present but invalid
// value is an error rather than a silent fallback.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage-key derivation modes. Truncation of raw private-key material is
// the compatibility default; HKDF is the hardened opt-in and is not
// compatible with records sealed under truncation.
const (
	DerivationTruncate = "truncate"
	DerivationHKDF     = "hkdf"
)

type Config struct {
	DataDir              string `yaml:"dataDir"`
	KeyStoreFile         string `yaml:"keyStoreFile"`
	StorageKeyDerivation string `yaml:"storageKeyDerivation"`
}

func Default() Config {
	return Config{
		DataDir:              defaultDataDir(),
		KeyStoreFile:         "keys.json",
		StorageKeyDerivation: DerivationTruncate,
	}
}

// LoadFromPath reads configPath when given, otherwise tries the usual
// candidates. Unreadable candidates are skipped; defaults remain for every
// field the file leaves unset.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"lumen-chat.yaml",
			filepath.Join(defaultDataDir(), "config.yaml"),
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		merge(&cfg, parsed)
		break
	}

	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// KeyStorePath is the resolved location of the persisted key file.
func (c Config) KeyStorePath() string {
	if filepath.IsAbs(c.KeyStoreFile) {
		return c.KeyStoreFile
	}
	return filepath.Join(c.DataDir, c.KeyStoreFile)
}

func merge(dst *Config, src Config) {
	if strings.TrimSpace(src.DataDir) != "" {
		dst.DataDir = src.DataDir
	}
	if strings.TrimSpace(src.KeyStoreFile) != "" {
		dst.KeyStoreFile = src.KeyStoreFile
	}
	if strings.TrimSpace(src.StorageKeyDerivation) != "" {
		dst.StorageKeyDerivation = src.StorageKeyDerivation
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LUMEN_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("LUMEN_KEYSTORE_FILE")); v != "" {
		cfg.KeyStoreFile = v
	}
	if v := strings.TrimSpace(os.Getenv("LUMEN_STORAGE_KEY_DERIVATION")); v != "" {
		cfg.StorageKeyDerivation = v
	}
}

func (c Config) validate() error {
	switch c.StorageKeyDerivation {
	case DerivationTruncate, DerivationHKDF:
	default:
		return fmt.Errorf("unknown storageKeyDerivation %q", c.StorageKeyDerivation)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("dataDir must not be empty")
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lumen-chat"
	}
	return filepath.Join(home, ".lumen-chat")
}
