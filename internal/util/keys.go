package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// EntryKey is the provider key of one stored response.
func EntryKey(store, identity string) string {
	return "entry:" + store + ":" + identity
}

// IndexKey is the provider key holding the identities of a store.
func IndexKey(store string) string {
	return "index:" + store
}

// Redact returns a short stable digest of k for logs.
func Redact(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}
