package utils

import (
	"fmt"
	"strings"
)

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}

// GenerateRateLimitKey creates a unique key for rate limiting
func GenerateRateLimitKey(userID uint, path string) string {
	return fmt.Sprintf("rl:%d:%s", userID, path)
}

// DisplayNameFromEmail derives a placeholder display name from the local
// part of an address: "ana.gomez@example.com" -> "ana.gomez".
func DisplayNameFromEmail(address string) string {
	if idx := strings.Index(address, "@"); idx > 0 {
		return address[:idx]
	}
	return address
}
