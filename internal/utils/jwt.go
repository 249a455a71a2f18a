package utils // package utils provides helpers for signed flash-message tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Flash levels.
const (
	FlashSuccess = "success"
	FlashWarning = "warning"
)

// Flash is a one-shot notice shown on the next page after a redirect.
type Flash struct {
	Message string `json:"msg"`
	Level   string `json:"lvl"`
}

type flashClaims struct {
	Flash
	jwt.RegisteredClaims
}

// NewFlashToken signs f as an HS256 JWT that expires after ttl. The token
// is stored in a cookie, so the signature keeps clients from forging
// notices.
func NewFlashToken(secret string, f Flash, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := flashClaims{
		Flash: f,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseFlashToken verifies the signature and expiry of a flash token.
func ParseFlashToken(secret, raw string) (Flash, error) {
	var claims flashClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Flash{}, err
	}
	if !tok.Valid {
		return Flash{}, errors.New("invalid flash token")
	}
	return claims.Flash, nil
}
