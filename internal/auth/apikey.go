package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Key format: sk_live_{64 lowercase hex chars}
const (
	KeyPrefix      = "sk_live_"
	keyEntropySize = 32 // bytes, hex encoded to 64 chars
)

var keyFormatRegex = regexp.MustCompile(`^sk_live_[a-f0-9]{64}$`)

// GenerateAPIKey returns a new API key with 256 bits of entropy from the
// operating system CSPRNG. Uniqueness against stored keys is the caller's
// concern.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, keyEntropySize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}

// ValidateKeyFormat checks if the key matches the issued key format.
// It is a fast-path filter and says nothing about whether the key exists.
func ValidateKeyFormat(key string) bool {
	return keyFormatRegex.MatchString(key)
}
