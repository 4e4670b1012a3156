// Package random generates unguessable identifiers over the URL-safe
// alphabet used for every public handle (key IDs, secrets, magic-link
// tokens, job IDs).
package random

import (
	"crypto/rand"
)

// Alphabet is the unreserved URL-safe character set.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// String returns n characters drawn uniformly from Alphabet using crypto/rand.
func String(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	// 64-character alphabet: mask the low 6 bits for a uniform draw.
	for i, b := range buf {
		buf[i] = Alphabet[b&63]
	}
	return string(buf)
}
