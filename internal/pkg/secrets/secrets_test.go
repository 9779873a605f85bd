package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := New("test-passphrase")
	require.NoError(t, err)

	sealed, err := box.Seal("imap-password-123")
	require.NoError(t, err)
	assert.NotEqual(t, "imap-password-123", sealed)

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "imap-password-123", plain)
}

func TestSealIsNonDeterministic(t *testing.T) {
	box, err := New("test-passphrase")
	require.NoError(t, err)

	a, err := box.Seal("secret")
	require.NoError(t, err)
	b, err := box.Seal("secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenWrongKey(t *testing.T) {
	box1, err := New("key-one")
	require.NoError(t, err)
	box2, err := New("key-two")
	require.NoError(t, err)

	sealed, err := box1.Seal("secret")
	require.NoError(t, err)

	_, err = box2.Open(sealed)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestOpenGarbage(t *testing.T) {
	box, err := New("key")
	require.NoError(t, err)

	_, err = box.Open("not-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = box.Open("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestEmptyPassphrase(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
