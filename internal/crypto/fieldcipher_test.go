package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()
	c, err := New("correct horse battery staple")
	require.NoError(t, err)

	for _, plain := range []string{"", "a", "user@example.org", "https://hooks.example.com/x?y=1", "späß 値"} {
		ct, err := c.Encrypt(plain)
		require.NoError(t, err)

		got, ok := c.Decrypt(ct)
		require.True(t, ok, "decrypt of %q", plain)
		assert.Equal(t, plain, got)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	t.Parallel()
	c, err := New("k")
	require.NoError(t, err)

	a, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := c.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	pa, ok := c.Decrypt(a)
	require.True(t, ok)
	pb, ok := c.Decrypt(b)
	require.True(t, ok)
	assert.Equal(t, "same plaintext", pa)
	assert.Equal(t, "same plaintext", pb)
}

func TestDecryptFailsClosed(t *testing.T) {
	t.Parallel()
	c, err := New("primary key")
	require.NoError(t, err)
	other, err := New("different key")
	require.NoError(t, err)

	ct, err := c.Encrypt("secret")
	require.NoError(t, err)

	t.Run("empty input", func(t *testing.T) {
		_, ok := c.Decrypt("")
		assert.False(t, ok)
	})

	t.Run("not base64", func(t *testing.T) {
		_, ok := c.Decrypt("!!not-base64!!")
		assert.False(t, ok)
	})

	t.Run("truncated", func(t *testing.T) {
		_, ok := c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
		assert.False(t, ok)
	})

	t.Run("tampered", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(ct)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0x01
		_, ok := c.Decrypt(base64.StdEncoding.EncodeToString(raw))
		assert.False(t, ok)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, ok := other.Decrypt(ct)
		assert.False(t, ok)
	})
}

func TestKeyTruncationAndPadding(t *testing.T) {
	t.Parallel()
	// A passphrase longer than the key width must behave like its 32-byte prefix.
	long, err := New("0123456789abcdef0123456789abcdefTRAILING")
	require.NoError(t, err)
	prefix, err := New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	ct, err := long.Encrypt("payload")
	require.NoError(t, err)
	got, ok := prefix.Decrypt(ct)
	require.True(t, ok)
	assert.Equal(t, "payload", got)
}
