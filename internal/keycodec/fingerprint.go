package keycodec

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a short, stable identifier for key that is safe to log.
// Surrounding whitespace is ignored so that a key pasted with a trailing
// newline maps to the same fingerprint.
func Fingerprint(key string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:8])
}
