package crypto

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fernet/fernet-go"
)

// EnvKeyName is the environment variable holding the base64-url-encoded
// encryption key.
const EnvKeyName = "YOURMOMENT_ENCRYPTION_KEY"

// DefaultKeyFile is the fallback key file path relative to the working
// directory.
const DefaultKeyFile = ".encryption_key"

// LoadOrGenerateKey resolves key material in priority order:
//
//  1. The YOURMOMENT_ENCRYPTION_KEY environment variable.
//  2. The key file at keyFile (a single line of base64-url key material).
//  3. A freshly generated key, persisted to keyFile with 0600 permissions.
//
// Generating a key logs a warning: losing the file makes existing
// ciphertexts unrecoverable.
func LoadOrGenerateKey(keyFile string) (string, error) {
	if key := os.Getenv(EnvKeyName); key != "" {
		if _, err := fernet.DecodeKey(key); err != nil {
			return "", fmt.Errorf("invalid %s: %w", EnvKeyName, err)
		}
		return key, nil
	}

	if keyFile == "" {
		keyFile = DefaultKeyFile
	}

	if raw, err := os.ReadFile(keyFile); err == nil {
		key := strings.TrimSpace(string(raw))
		if _, err := fernet.DecodeKey(key); err != nil {
			return "", fmt.Errorf("invalid key material in %s: %w", keyFile, err)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading key file %s: %w", keyFile, err)
	}

	var generated fernet.Key
	if err := generated.Generate(); err != nil {
		return "", fmt.Errorf("generating encryption key: %w", err)
	}
	key := generated.Encode()

	if err := os.WriteFile(keyFile, []byte(key+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persisting key file %s: %w", keyFile, err)
	}

	slog.Warn("Generated new encryption key — back up the key file, losing it makes stored credentials unrecoverable",
		"key_file", keyFile)

	return key, nil
}

// NewVaultFromEnv builds a vault using LoadOrGenerateKey.
func NewVaultFromEnv(keyFile string) (*Vault, error) {
	key, err := LoadOrGenerateKey(keyFile)
	if err != nil {
		return nil, err
	}
	return NewVault(key)
}
