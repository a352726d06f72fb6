package storage

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// NewToken returns fresh invite token material.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HashToken is the at-rest form of an invite token.
func HashToken(token string) string {
	sum := sha3.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}
