package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"io"
)

// LoginTokenBytes is the entropy of OIDC state and nonce values.
const LoginTokenBytes = 32

// SecureToken returns n bytes from crypto/rand as unpadded URL-safe base64.
func SecureToken(n int) string {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err.Error()) // rand should never fail
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// LoginToken returns a fresh state or nonce value.
func LoginToken() string {
	return SecureToken(LoginTokenBytes)
}
