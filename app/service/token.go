package service

import (
	"crypto/rand"
	"database/sql"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const pinTokenLength = 10

// GenerateToken returns an opaque high-entropy single-use token, used for
// magic link and password reset credentials.
func GenerateToken() string {
	return uuid.New().String()
}

// GeneratePinToken returns a short numeric token meant to be typed by a
// human, used for email address verification.
func GeneratePinToken() (string, error) {
	var pin strings.Builder
	for i := 0; i < pinTokenLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		pin.WriteByte(byte('0' + n.Int64()))
	}
	return pin.String(), nil
}

// FormatPinForDisplay groups a PIN into 3-character blocks for readability.
func FormatPinForDisplay(pin string) string {
	var out strings.Builder
	for i, ch := range pin {
		if i > 0 && i%3 == 0 {
			out.WriteByte(' ')
		}
		out.WriteRune(ch)
	}
	return out.String()
}

// IsExpired reports whether a token issued at sentAt has outlived its
// expiration window. A missing timestamp counts as expired: a token without
// its issuance time must never validate.
func IsExpired(sentAt sql.NullTime, window time.Duration) bool {
	if !sentAt.Valid {
		return true
	}
	return time.Since(sentAt.Time) >= window
}
