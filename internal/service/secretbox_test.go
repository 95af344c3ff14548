package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSecretBoxRoundTrip(t *testing.T) {
	box, err := NewSecretBox(testMasterKey)
	require.NoError(t, err)

	sealed, err := box.Seal("1//refresh-token-value")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "refresh-token")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "1//refresh-token-value", opened)
}

func TestSecretBoxNoncePerSeal(t *testing.T) {
	box, err := NewSecretBox(testMasterKey)
	require.NoError(t, err)

	a, err := box.Seal("same")
	require.NoError(t, err)
	b, err := box.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSecretBoxRejectsBadKey(t *testing.T) {
	_, err := NewSecretBox("not-hex")
	assert.Error(t, err)

	_, err = NewSecretBox("00ff")
	assert.Error(t, err)
}

func TestSecretBoxRejectsTampering(t *testing.T) {
	box, err := NewSecretBox(testMasterKey)
	require.NoError(t, err)

	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	head := "A"
	if sealed[0] == 'A' {
		head = "B"
	}
	_, err = box.Open(head + sealed[1:])
	assert.Error(t, err)
}
