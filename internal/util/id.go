package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier like "prop_9f86d08188...". The prefix
// makes document families greppable in logs and store dumps.
func NewID(prefix string) string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
