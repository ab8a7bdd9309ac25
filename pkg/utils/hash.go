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

// HashFields builds a cache key from several request fields. The separator
// keeps ("ab", "c") and ("a", "bc") from colliding.
func HashFields(fields ...string) string {
	return HashString(strings.Join(fields, "|"))
}
