// Package idgen generates the identifiers carried by mirror patches and
// replica sessions.
//
// Patch IDs are UUIDv7 so that the replica can order and deduplicate them
// without a clock of its own. Session IDs are short and prefixed for logs.
package idgen

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs (time-sortable).
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// NanoID returns a Generator of base-36 IDs of the given length.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// Prefixed prepends prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default generates patch IDs.
var Default Generator = UUIDv7()

// Session generates mirror session IDs ("ses_" + 12 base-36 chars).
var Session Generator = Prefixed("ses_", NanoID(12))

// New produces an ID using Default.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return u.String(), nil
}

// Version returns the UUID version of s, 0 when s is not a UUID.
func Version(s string) int {
	u, err := uuid.Parse(s)
	if err != nil {
		return 0
	}
	return int(u.Version())
}
