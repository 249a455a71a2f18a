// Package token issues and checks the secret that authorizes edits and
// deletes of a listing. The secret is delivered only by email.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/iliyamo/apartment-board/internal/model"
)

// Size is the digest length in bytes; the hex form is twice as long.
const Size = 16

// Authority generates and verifies listing secrets.
type Authority struct {
	rand io.Reader
}

// NewAuthority returns an Authority backed by crypto/rand.
func NewAuthority() *Authority {
	return &Authority{rand: rand.Reader}
}

// Generate derives a fresh secret from the listing address and a random
// nonce. Two calls for the same address never collide in practice.
func (a *Authority) Generate(l *model.Listing) (string, error) {
	nonce := make([]byte, 16)
	if _, err := io.ReadFull(a.rand, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	h, err := blake2b.New(Size, nil)
	if err != nil {
		return "", err
	}
	h.Write([]byte(l.Street + "." + l.Town + "." + l.Country))
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether supplied matches the stored secret. An empty
// secret never matches.
func (a *Authority) Verify(l *model.Listing, supplied string) bool {
	if supplied == "" || l.SecurityToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(l.SecurityToken), []byte(supplied)) == 1
}
