package token

import (
	"bytes"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/apartment-board/internal/model"
)

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestGenerate_Shape(t *testing.T) {
	a := NewAuthority()
	l := &model.Listing{Street: "Main St 1", Town: "Riga", Country: "Latvia"}

	tok, err := a.Generate(l)
	require.NoError(t, err)
	assert.Regexp(t, hex32, tok)
}

func TestGenerate_UniqueForSameAddress(t *testing.T) {
	a := NewAuthority()
	l := &model.Listing{Street: "Main St 1", Town: "Riga", Country: "Latvia"}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := a.Generate(l)
		require.NoError(t, err)
		assert.False(t, seen[tok], "duplicate token %s", tok)
		seen[tok] = true
	}
}

func TestGenerate_DeterministicForFixedNonce(t *testing.T) {
	nonce := bytes.Repeat([]byte{7}, 32)
	l := &model.Listing{Street: "A", Town: "B", Country: "C"}

	t1, err := (&Authority{rand: bytes.NewReader(nonce)}).Generate(l)
	require.NoError(t, err)
	t2, err := (&Authority{rand: bytes.NewReader(nonce)}).Generate(l)
	require.NoError(t, err)
	assert.Equal(t, t1, t2)

	other := &model.Listing{Street: "A", Town: "B", Country: "D"}
	t3, err := (&Authority{rand: bytes.NewReader(nonce)}).Generate(other)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t3)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerate_RandomFailure(t *testing.T) {
	_, err := (&Authority{rand: failingReader{}}).Generate(&model.Listing{})
	assert.ErrorContains(t, err, "entropy exhausted")
}

func TestVerify(t *testing.T) {
	a := NewAuthority()
	l := &model.Listing{SecurityToken: "0123456789abcdef0123456789abcdef"}

	assert.True(t, a.Verify(l, "0123456789abcdef0123456789abcdef"))
	assert.False(t, a.Verify(l, "0123456789abcdef0123456789abcdee"))
	assert.False(t, a.Verify(l, "0123456789ABCDEF0123456789ABCDEF"))
	assert.False(t, a.Verify(l, ""))
	assert.False(t, a.Verify(&model.Listing{}, ""))
}
