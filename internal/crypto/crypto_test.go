package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersAtSignsRequest(t *testing.T) {
	auth := &HMACAuth{Key: "key-1", Secret: "s3cret", Account: "12345678"}
	h := auth.HeadersAt("POST", "/v1/orders", `{"code":"005930"}`, 1_700_000_000)

	assert.Equal(t, "key-1", h[HeaderKey])
	assert.Equal(t, "1700000000", h[HeaderTimestamp])
	assert.Equal(t, "12345678", h[HeaderAccount])
	assert.True(t, Verify("s3cret", "1700000000", "POST", "/v1/orders", `{"code":"005930"}`, h[HeaderSignature]))
	assert.False(t, Verify("s3cret", "1700000000", "POST", "/v1/orders", `{"code":"000660"}`, h[HeaderSignature]))
	assert.False(t, Verify("other", "1700000000", "POST", "/v1/orders", `{"code":"005930"}`, h[HeaderSignature]))
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdefgh", Secret: "topsecretvalue"}
	s := auth.String()
	assert.NotContains(t, s, "topsecretvalue")
	assert.Contains(t, s, "abcd****")
}

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret("bridge-secret", "hunter2")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "bridge-secret", got)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	got, err := LoadSecret(SecretConfig{Raw: "plain"})
	require.NoError(t, err)
	assert.Equal(t, "plain", got)

	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadSecret(SecretConfig{EncryptedPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	_, err = LoadSecret(SecretConfig{})
	assert.Error(t, err)
}
