package secret

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestBox_SealOpen(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	sealed, err := box.Seal("smtp-password")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "smtp-password")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "smtp-password", plain)
}

func TestBox_EmptyPassthrough(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	sealed, err := box.Seal("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	plain, err := box.Open("")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestBox_OpenRejectsTampered(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	_, err = box.Open("not-base64!!")
	assert.ErrorIs(t, err, ErrMalformed)

	other, err := NewBox(strings.Repeat("ab", 32))
	require.NoError(t, err)
	sealed, err := other.Seal("token")
	require.NoError(t, err)
	_, err = box.Open(sealed)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewBox_RejectsBadKeys(t *testing.T) {
	_, err := NewBox("zz")
	require.Error(t, err)

	_, err = NewBox("abcd")
	require.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "***", Mask("abc"))
	assert.Equal(t, "*****6789", Mask("123456789"))
}
