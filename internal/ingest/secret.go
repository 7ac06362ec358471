package ingest

import (
	"golang.org/x/crypto/bcrypt"
)

// SecretVerifier checks the shared secret co-located modules present on the
// synchronous ingest endpoint. Only the bcrypt hash is configured; the plain
// secret never touches our config.
type SecretVerifier struct {
	hash []byte
}

func NewSecretVerifier(bcryptHash string) *SecretVerifier {
	return &SecretVerifier{hash: []byte(bcryptHash)}
}

// Verify reports whether the presented secret matches. An unconfigured hash
// never matches.
func (v *SecretVerifier) Verify(secret string) bool {
	if len(v.hash) == 0 || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(secret)) == nil
}
