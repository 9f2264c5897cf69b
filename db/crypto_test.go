package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretCipher_WrapUnwrap(t *testing.T) {
	c, err := newSecretCipher("hunter2")
	require.NoError(t, err)

	wrapped, err := c.Wrap("topic-admin-key")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(wrapped, secretPrefix))
	assert.Len(t, strings.Split(strings.TrimPrefix(wrapped, secretPrefix), ":"), 3)

	plain, err := c.Unwrap(wrapped)
	require.NoError(t, err)
	assert.Equal(t, "topic-admin-key", plain)
}

func TestSecretCipher_FreshNoncePerWrap(t *testing.T) {
	c, err := newSecretCipher("hunter2")
	require.NoError(t, err)

	first, err := c.Wrap("same-value")
	require.NoError(t, err)
	second, err := c.Wrap("same-value")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestSecretCipher_TamperDetected(t *testing.T) {
	c, err := newSecretCipher("hunter2")
	require.NoError(t, err)

	wrapped, err := c.Wrap("topic-admin-key")
	require.NoError(t, err)
	parts := strings.Split(strings.TrimPrefix(wrapped, secretPrefix), ":")
	require.Len(t, parts, 3)

	// Swapping the tag for a valid but wrong one must fail authentication.
	other, err := c.Wrap("another-value")
	require.NoError(t, err)
	otherParts := strings.Split(strings.TrimPrefix(other, secretPrefix), ":")
	tampered := secretPrefix + parts[0] + ":" + parts[1] + ":" + otherParts[2]

	_, err = c.Unwrap(tampered)
	assert.Error(t, err)
}

func TestSecretCipher_WrongKeyFails(t *testing.T) {
	c1, err := newSecretCipher("hunter2")
	require.NoError(t, err)
	c2, err := newSecretCipher("hunter3")
	require.NoError(t, err)

	wrapped, err := c1.Wrap("topic-admin-key")
	require.NoError(t, err)
	_, err = c2.Unwrap(wrapped)
	assert.Error(t, err)
}

func TestSecretCipher_PassthroughWithoutPrefix(t *testing.T) {
	c, err := newSecretCipher("hunter2")
	require.NoError(t, err)

	plain, err := c.Unwrap("not-an-envelope")
	require.NoError(t, err)
	assert.Equal(t, "not-an-envelope", plain)
}

func TestSecretCipher_MalformedEnvelope(t *testing.T) {
	c, err := newSecretCipher("hunter2")
	require.NoError(t, err)

	for _, value := range []string{
		secretPrefix + "only-two:parts",
		secretPrefix + "!!!:!!!:!!!",
	} {
		_, err := c.Unwrap(value)
		assert.Error(t, err, "value %q", value)
	}
}
