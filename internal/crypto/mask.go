package crypto

import (
	"crypto/sha256"
	"strings"

	"github.com/fernet/fernet-go"
	"github.com/pkg/errors"
)

const (
	MaskPrefix     = "mgxkey-"
	DefaultMaskKey = "Mgx@FunctionSea"
)

// Masker hides secrets in configuration files as MaskPrefix followed by a
// Fernet token. The Fernet key is the SHA-256 digest of the mask key.
type Masker struct {
	key *fernet.Key
}

func NewMasker(maskKey string) (*Masker, error) {
	if maskKey == "" {
		maskKey = DefaultMaskKey
	}
	sum := sha256.Sum256([]byte(maskKey))
	key := fernet.Key(sum)
	return &Masker{key: &key}, nil
}

func IsMasked(value string) bool {
	return strings.HasPrefix(value, MaskPrefix)
}

// Mask encrypts plain. Values that are already masked are returned as is.
func (m *Masker) Mask(plain string) (string, error) {
	if plain == "" || IsMasked(plain) {
		return plain, nil
	}
	tok, err := fernet.EncryptAndSign([]byte(plain), m.key)
	if err != nil {
		return "", errors.Wrap(err, "unable to mask value")
	}
	return MaskPrefix + string(tok), nil
}

// Unmask returns the plaintext of a masked value, or value unchanged
// when it carries no mask prefix.
func (m *Masker) Unmask(value string) (string, error) {
	if !IsMasked(value) {
		return value, nil
	}
	msg := fernet.VerifyAndDecrypt([]byte(strings.TrimPrefix(value, MaskPrefix)), 0, []*fernet.Key{m.key})
	if msg == nil {
		return "", errors.New("masked value could not be decrypted, check MASK_KEY")
	}
	return string(msg), nil
}
