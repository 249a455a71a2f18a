package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlashToken_RoundTrip(t *testing.T) {
	in := Flash{Message: "Your apartment was successfully changed.", Level: FlashSuccess}
	raw, err := NewFlashToken("secret", in, time.Minute)
	require.NoError(t, err)

	out, err := ParseFlashToken("secret", raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFlashToken_Rejects(t *testing.T) {
	raw, err := NewFlashToken("secret", Flash{Message: "x"}, time.Minute)
	require.NoError(t, err)

	_, err = ParseFlashToken("other", raw)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	expired, err := NewFlashToken("secret", Flash{Message: "x"}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseFlashToken("secret", expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = ParseFlashToken("secret", "not-a-token")
	assert.Error(t, err)
}
