// Package id draws random short codes.
package id

import (
	"crypto/rand"
	"io"
	"strings"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DefaultLength is the code length used when none is configured.
const DefaultLength = 7

// Bytes at or above this value are rejected so every symbol stays equally likely.
const rejectAbove = 256 - 256%len(alphabet)

// RandomBase62 returns a cryptographically random base62 string of length n.
func RandomBase62(n int) (string, error) {
	return randomFrom(rand.Reader, n)
}

func randomFrom(r io.Reader, n int) (string, error) {
	if n <= 0 {
		n = DefaultLength
	}
	var b strings.Builder
	b.Grow(n)
	buf := make([]byte, n+n/2)
	for b.Len() < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if int(c) >= rejectAbove {
				continue
			}
			b.WriteByte(alphabet[int(c)%len(alphabet)])
			if b.Len() == n {
				break
			}
		}
	}
	return b.String(), nil
}

// IsBase62 reports whether s is non-empty and uses only the code alphabet.
func IsBase62(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
