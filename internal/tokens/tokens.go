// ABOUTME: Agent auth token generation, hashing, and verification
// ABOUTME: Only bcrypt hashes are stored locally; plaintext lives on the gateway

package tokens

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// tokenPrefix makes agent tokens recognizable in gateway TOOLS.md files.
const tokenPrefix = "oc_"

// Generate returns a new random agent auth token.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	return tokenPrefix + hex.EncodeToString(buf), nil
}

// Hash returns a bcrypt hash of the token for local storage.
func Hash(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing token: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether the plaintext token matches the stored hash.
func Verify(token, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
