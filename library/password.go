package library

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes        = 16
	pbkdf2Iterations = 1000
	pbkdf2KeyLen     = 64
)

// HashPassword derives a hex-encoded PBKDF2-SHA512 key for password using a
// fresh random salt. It returns the hash and the salt.
func HashPassword(password string) (hash, salt string, err error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	salt = hex.EncodeToString(raw)
	return derive(password, salt), salt, nil
}

// VerifyPassword recomputes the key for password and compares it with hash.
func VerifyPassword(password, hash, salt string) bool {
	if hash == "" || salt == "" {
		return false
	}
	got := derive(password, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(hash)) == 1
}

func derive(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, pbkdf2KeyLen, sha512.New)
	return hex.EncodeToString(key)
}
