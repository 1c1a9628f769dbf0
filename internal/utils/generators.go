package utils

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSlotToken returns a random, URL safe slot token. n random bytes
// become ceil(n*8/5) lowercase characters.
func GenerateSlotToken(n int) (string, error) {
	if n <= 0 {
		n = 10
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return strings.ToLower(tokenEncoding.EncodeToString(buf)), nil
}
