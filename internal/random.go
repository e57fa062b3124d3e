package internal

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const deviceTokenRawSize = 48

// NewLoginCode returns a zero-padded numeric code of the given length,
// drawn digit by digit from crypto/rand.
func NewLoginCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid login code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid login code length")
	}
	return code, nil
}

// NewDeviceToken returns an opaque urlsafe bearer token for a trusted
// device. Only its keyed hash is ever stored.
func NewDeviceToken() (string, error) {
	var raw [deviceTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// KeyedHash returns the hex SHA-256 digest of "value:secret". Login
// codes and device tokens are persisted only in this form, so a stolen
// database copy alone cannot be replayed.
func KeyedHash(value, secret string) string {
	sum := sha256.Sum256([]byte(value + ":" + secret))
	return hex.EncodeToString(sum[:])
}

// HashEqual compares two hex digests in constant time.
func HashEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
