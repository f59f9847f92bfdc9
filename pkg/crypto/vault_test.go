package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	var key fernet.Key
	require.NoError(t, key.Generate())
	vault, err := NewVault(key.Encode())
	require.NoError(t, err)
	return vault
}

func TestVaultRoundTrip(t *testing.T) {
	vault := newTestVault(t)

	cases := []string{
		"secret-password",
		"sk-proj-abcdef0123456789",
		"ümläute and emoji 🙂",
		"a",
		`{"cookies":{"sessionid":"xyz"}}`,
	}

	for _, plaintext := range cases {
		t.Run(plaintext, func(t *testing.T) {
			ciphertext, err := vault.Encrypt(plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, plaintext, ciphertext)
			assert.True(t, IsEncrypted(ciphertext))

			decrypted, err := vault.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decrypted)
		})
	}
}

func TestVaultEmptyString(t *testing.T) {
	vault := newTestVault(t)

	ciphertext, err := vault.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ciphertext)

	decrypted, err := vault.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", decrypted)

	assert.False(t, IsEncrypted(""))
}

func TestVaultWrongKey(t *testing.T) {
	vault := newTestVault(t)
	other := newTestVault(t)

	ciphertext, err := vault.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	require.Error(t, err)
	var decErr *DecryptionError
	assert.ErrorAs(t, err, &decErr)
}

func TestVaultTamperedToken(t *testing.T) {
	vault := newTestVault(t)

	ciphertext, err := vault.Encrypt("secret")
	require.NoError(t, err)

	tampered := ciphertext[:len(ciphertext)-8] + "AAAAAAA="
	_, err = vault.Decrypt(tampered)
	var decErr *DecryptionError
	assert.ErrorAs(t, err, &decErr)
}

func TestIsEncryptedHeuristic(t *testing.T) {
	vault := newTestVault(t)

	t.Run("plain strings are not encrypted", func(t *testing.T) {
		assert.False(t, IsEncrypted("password123"))
		assert.False(t, IsEncrypted("not base64 at all!!"))
	})

	t.Run("short base64 is not encrypted", func(t *testing.T) {
		assert.False(t, IsEncrypted("aGVsbG8="))
	})

	t.Run("vault output is encrypted", func(t *testing.T) {
		ciphertext, err := vault.Encrypt("hello")
		require.NoError(t, err)
		assert.True(t, IsEncrypted(ciphertext))
	})
}

func TestCredentialHelpers(t *testing.T) {
	vault := newTestVault(t)

	encUser, encPass, err := vault.EncryptCredentials("student42", "hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, encUser, encPass)

	username, password, err := vault.DecryptCredentials(encUser, encPass)
	require.NoError(t, err)
	assert.Equal(t, "student42", username)
	assert.Equal(t, "hunter2", password)
}

func TestSessionDataRoundTrip(t *testing.T) {
	vault := newTestVault(t)

	t.Run("structured data", func(t *testing.T) {
		data := map[string]string{"sessionid": "abc", "csrftoken": "def"}
		ciphertext, err := vault.EncryptSessionData(data)
		require.NoError(t, err)

		var out map[string]string
		require.NoError(t, vault.DecryptSessionData(ciphertext, &out))
		assert.Equal(t, data, out)
	})

	t.Run("raw string", func(t *testing.T) {
		ciphertext, err := vault.EncryptSessionData("opaque-blob")
		require.NoError(t, err)

		var out string
		require.NoError(t, vault.DecryptSessionData(ciphertext, &out))
		assert.Equal(t, "opaque-blob", out)
	})
}

func TestLoadOrGenerateKey(t *testing.T) {
	t.Run("env var wins", func(t *testing.T) {
		var key fernet.Key
		require.NoError(t, key.Generate())
		t.Setenv(EnvKeyName, key.Encode())

		got, err := LoadOrGenerateKey(filepath.Join(t.TempDir(), "unused"))
		require.NoError(t, err)
		assert.Equal(t, key.Encode(), got)
	})

	t.Run("generates and persists with 0600", func(t *testing.T) {
		t.Setenv(EnvKeyName, "")
		keyFile := filepath.Join(t.TempDir(), ".encryption_key")

		got, err := LoadOrGenerateKey(keyFile)
		require.NoError(t, err)
		_, err = fernet.DecodeKey(got)
		require.NoError(t, err)

		info, err := os.Stat(keyFile)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		// Second call reads the same key back.
		again, err := LoadOrGenerateKey(keyFile)
		require.NoError(t, err)
		assert.Equal(t, got, again)
	})

	t.Run("rejects garbage key file", func(t *testing.T) {
		t.Setenv(EnvKeyName, "")
		keyFile := filepath.Join(t.TempDir(), ".encryption_key")
		require.NoError(t, os.WriteFile(keyFile, []byte("not-a-key\n"), 0o600))

		_, err := LoadOrGenerateKey(keyFile)
		assert.Error(t, err)
	})
}
