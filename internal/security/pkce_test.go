package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPKCE(t *testing.T) {
	p := NewPKCE()
	assert.Len(t, p.Verifier, 128)
	assert.Len(t, p.Challenge, 43)
	assert.Equal(t, PKCEMethodS256, p.Method)
	require.NoError(t, VerifyPKCEChallenge(p.Challenge, p.Method, p.Verifier))

	other := NewPKCE()
	assert.NotEqual(t, p.Verifier, other.Verifier)
}

func TestVerifyPKCEChallenge(t *testing.T) {
	tests := []struct {
		name                string
		codeChallenge       string
		codeChallengeMethod string
		codeVerifier        string
		wantErr             bool
		errMsg              string
	}{
		{
			// RFC 7636 Appendix B
			name:                "valid S256 PKCE",
			codeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
			codeChallengeMethod: "S256",
			codeVerifier:        "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
		},
		{
			name:                "case insensitive S256 method",
			codeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
			codeChallengeMethod: "s256",
			codeVerifier:        "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
		},
		{
			name:                "invalid S256 verifier",
			codeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
			codeChallengeMethod: "S256",
			codeVerifier:        "wrong-verifier",
			wantErr:             true,
			errMsg:              "code challenge does not match",
		},
		{
			name:                "plain is not supported",
			codeChallenge:       "test-challenge",
			codeChallengeMethod: "plain",
			codeVerifier:        "test-challenge",
			wantErr:             true,
			errMsg:              "code challenge method not supported",
		},
		{
			name:                "empty challenge",
			codeChallenge:       "",
			codeChallengeMethod: "S256",
			codeVerifier:        "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
			wantErr:             true,
			errMsg:              "code challenge does not match",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPKCEChallenge(tt.codeChallenge, tt.codeChallengeMethod, tt.codeVerifier)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
