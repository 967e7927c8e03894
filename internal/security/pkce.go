package security

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/oauth2"

	"github.com/funcsea/appbackend/internal/crypto"
)

const (
	PKCEMethodS256 = "S256"

	// 96 random bytes, 128 characters once encoded: the RFC 7636 maximum
	pkceVerifierBytes = 96
)

const PKCEInvalidCodeChallengeError = "code challenge does not match previously saved code verifier"
const PKCEInvalidCodeMethodError = "code challenge method not supported"

// PKCE holds a verifier and the challenge sent on the authorization request.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCE generates a fresh verifier and its S256 challenge.
func NewPKCE() PKCE {
	verifier := crypto.SecureToken(pkceVerifierBytes)
	return PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    PKCEMethodS256,
	}
}

// VerifyPKCEChallenge checks verifier against a previously issued challenge.
func VerifyPKCEChallenge(codeChallenge, codeChallengeMethod, codeVerifier string) error {
	if !strings.EqualFold(codeChallengeMethod, PKCEMethodS256) {
		return errors.New(PKCEInvalidCodeMethodError)
	}
	expected := oauth2.S256ChallengeFromVerifier(codeVerifier)
	if subtle.ConstantTimeCompare([]byte(codeChallenge), []byte(expected)) != 1 {
		return errors.New(PKCEInvalidCodeChallengeError)
	}
	return nil
}
