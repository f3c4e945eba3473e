package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// HashParts hashes an ordered tuple. Parts are NUL-separated so ("a", "bc")
// and ("ab", "c") never collide.
func HashParts(parts ...string) string {
	return HashString(strings.Join(parts, "\x00"))
}
