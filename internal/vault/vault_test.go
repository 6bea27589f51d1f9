package vault

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testVaultKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestVault_SetGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	v, err := New(path, testVaultKey(0x11), testLogger())
	require.NoError(t, err)

	_, ok := v.Get("twilio_api_key")
	assert.False(t, ok)

	require.NoError(t, v.Set("twilio_api_key", "sk-123"))
	require.NoError(t, v.Set("sendgrid_api_key", "sg-456"))

	value, ok := v.Get("twilio_api_key")
	require.True(t, ok)
	assert.Equal(t, "sk-123", value)

	require.NoError(t, v.Delete("twilio_api_key"))
	_, ok = v.Get("twilio_api_key")
	assert.False(t, ok)

	// Deleting an absent key is a no-op.
	require.NoError(t, v.Delete("twilio_api_key"))
}

func TestVault_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	key := testVaultKey(0x22)

	v, err := New(path, key, testLogger())
	require.NoError(t, err)
	require.NoError(t, v.Set("provider_key", "secret-value"))

	reopened, err := New(path, key, testLogger())
	require.NoError(t, err)
	value, ok := reopened.Get("provider_key")
	require.True(t, ok)
	assert.Equal(t, "secret-value", value)
}

func TestVault_WrongKeyFailsConstruction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")

	v, err := New(path, testVaultKey(0x33), testLogger())
	require.NoError(t, err)
	require.NoError(t, v.Set("provider_key", "secret-value"))

	_, err = New(path, testVaultKey(0x44), testLogger())
	require.Error(t, err, "rotated key must fail hard, not serve partial secrets")
}

func TestVault_RejectsBadKeySize(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "vault.bin"), []byte("short"), testLogger())
	require.Error(t, err)
}

func TestVault_ListNamesOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	v, err := New(path, testVaultKey(0x55), testLogger())
	require.NoError(t, err)

	require.NoError(t, v.Set("b_key", "b"))
	require.NoError(t, v.Set("a_key", "a"))

	names := v.List()
	assert.Equal(t, []string{"a_key", "b_key"}, names)
	assert.NotContains(t, names, "a")
	assert.NotContains(t, names, "b")
}

func TestVault_FileIsOpaque(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.bin")
	v, err := New(path, testVaultKey(0x66), testLogger())
	require.NoError(t, err)
	require.NoError(t, v.Set("provider_key", "plaintext-should-not-appear"))

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "plaintext-should-not-appear")
	assert.NotContains(t, string(blob), "provider_key")
}
