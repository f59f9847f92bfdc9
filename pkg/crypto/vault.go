// Package crypto provides the credential vault: authenticated encryption for
// API keys, platform credentials, and serialized session data, plus key
// material lifecycle management.
package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"
)

// fernetVersionPrefix is the base64 rendering of the token version byte 0x80.
// Every fernet token starts with it, which makes double-encoded ciphertexts
// recognizable without attempting a decrypt.
const fernetVersionPrefix = "gAAAAA"

// minTokenLength is the smallest plausible inner token: version + timestamp +
// IV + one cipher block + HMAC, base64-encoded.
const minTokenLength = 60

// EncryptionError indicates that plaintext could not be encrypted.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption failed: %v", e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// DecryptionError indicates a ciphertext could not be decrypted — wrong key,
// tampered token, or malformed input. Fatal for the single operation only.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// Vault encrypts and decrypts sensitive fields with a process-scoped key.
// Construct one at startup with NewVault and pass it explicitly to the
// services that need it.
type Vault struct {
	key *fernet.Key
}

// NewVault creates a vault from raw key material (a base64-url-encoded
// 32-byte fernet key).
func NewVault(encodedKey string) (*Vault, error) {
	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return &Vault{key: key}, nil
}

// Encrypt encrypts a UTF-8 plaintext and returns a ciphertext suitable for a
// text column: the fernet token, base64-url-encoded a second time.
//
// Encrypting the empty string returns the empty string so that "not set"
// round-trips as "not set".
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	token, err := fernet.EncryptAndSign([]byte(plaintext), v.key)
	if err != nil {
		return "", &EncryptionError{Err: err}
	}
	return base64.URLEncoding.EncodeToString(token), nil
}

// Decrypt reverses Encrypt. The empty string decrypts to the empty string.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	token, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &DecryptionError{Err: fmt.Errorf("invalid storage encoding: %w", err)}
	}
	plaintext := fernet.VerifyAndDecrypt(token, 0, []*fernet.Key{v.key})
	if plaintext == nil {
		return "", &DecryptionError{Err: fmt.Errorf("token verification failed")}
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether s looks like a ciphertext produced by Encrypt.
// Heuristic: the outer base64 layer decodes, the result is long enough to be
// a token, and it carries the fernet version marker.
func IsEncrypted(s string) bool {
	if s == "" {
		return false
	}
	inner, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	if len(inner) < minTokenLength {
		return false
	}
	return strings.HasPrefix(string(inner), fernetVersionPrefix)
}

// EncryptAPIKey encrypts an LLM provider API key.
func (v *Vault) EncryptAPIKey(apiKey string) (string, error) {
	return v.Encrypt(apiKey)
}

// DecryptAPIKey decrypts an LLM provider API key.
func (v *Vault) DecryptAPIKey(ciphertext string) (string, error) {
	return v.Decrypt(ciphertext)
}

// EncryptCredentials encrypts a platform username/password pair, returning
// the two ciphertexts in order.
func (v *Vault) EncryptCredentials(username, password string) (string, string, error) {
	encUser, err := v.Encrypt(username)
	if err != nil {
		return "", "", err
	}
	encPass, err := v.Encrypt(password)
	if err != nil {
		return "", "", err
	}
	return encUser, encPass, nil
}

// DecryptCredentials reverses EncryptCredentials.
func (v *Vault) DecryptCredentials(encUsername, encPassword string) (string, string, error) {
	username, err := v.Decrypt(encUsername)
	if err != nil {
		return "", "", err
	}
	password, err := v.Decrypt(encPassword)
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

// EncryptSessionData serializes session data (cookies, tokens) to JSON and
// encrypts the result. Strings are stored as-is without re-serialization.
func (v *Vault) EncryptSessionData(data any) (string, error) {
	switch d := data.(type) {
	case string:
		return v.Encrypt(d)
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return "", &EncryptionError{Err: fmt.Errorf("serializing session data: %w", err)}
		}
		return v.Encrypt(string(raw))
	}
}

// DecryptSessionData decrypts an encrypted session blob and unmarshals it
// into out. Pass a *string to receive the raw plaintext.
func (v *Vault) DecryptSessionData(ciphertext string, out any) error {
	plaintext, err := v.Decrypt(ciphertext)
	if err != nil {
		return err
	}
	if s, ok := out.(*string); ok {
		*s = plaintext
		return nil
	}
	if err := json.Unmarshal([]byte(plaintext), out); err != nil {
		return &DecryptionError{Err: fmt.Errorf("deserializing session data: %w", err)}
	}
	return nil
}
