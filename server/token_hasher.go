package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// KeyHasher derives deterministic, salted hashes for API keys.
type KeyHasher struct {
	salt []byte
}

// NewKeyHasher constructs a hasher with the provided salt bytes.
func NewKeyHasher(salt []byte) KeyHasher {
	return KeyHasher{salt: append([]byte(nil), salt...)}
}

// HashString hashes the given key using HMAC-SHA256 and returns a base64 string.
func (h KeyHasher) HashString(key string) string {
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(key))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
